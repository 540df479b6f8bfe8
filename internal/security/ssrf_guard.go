// Package security はアラート送信先ゲートウェイへの外向き通信を保護する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// GatewayGuard は外向きHTTPクライアントと送信先URLの検証を提供する。
// SMS・メール送信ゲートウェイの呼び出しに使用する。
type GatewayGuard interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
	// DNS解決後にsafeurlがブロックする。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateGatewayURL はゲートウェイのベースURLを静的に検証する。
	ValidateGatewayURL(rawURL string) error
}

// gatewayScheme はゲートウェイ呼び出しで許可するスキーム。
// 認証情報を送るため平文HTTPは許可しない。
const gatewayScheme = "https"

// blockedNetworks はブロック対象のネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（169.254.169.254 を含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// gatewayGuard はGatewayGuardの実装。
type gatewayGuard struct{}

// NewGatewayGuard はGatewayGuardの新しいインスタンスを生成する。
func NewGatewayGuard() *gatewayGuard {
	return &gatewayGuard{}
}

// NewSafeClient はHTTPS/443のみを許可するクライアントを生成する。
func (g *gatewayGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(gatewayScheme).
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateGatewayURL はURLのスキーム・ホストを検証する。
// DNS解決後の検証はNewSafeClientのクライアント側で行われる。
func (g *gatewayGuard) ValidateGatewayURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if !strings.EqualFold(parsed.Scheme, gatewayScheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %s)", parsed.Scheme, gatewayScheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("disallowed port: %s", port)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

// isBlockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
