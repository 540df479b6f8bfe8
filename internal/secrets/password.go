// Package secrets はメールボックス認証情報の解決を行う。
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrPasswordNotFound は環境変数にもキーリングにもパスワードが無いことを表す。
var ErrPasswordNotFound = errors.New("IMAP password not found (set IMAP_PASSWORD or store it in the OS keyring)")

// IMAPKeyringAccount はキーリングに保存するIMAPアカウント名を返す。
func IMAPKeyringAccount(user, host string) string {
	return fmt.Sprintf("imap:%s@%s", user, host)
}

// IMAPPassword はIMAPパスワードを解決する。
// 環境変数の値を優先し、空の場合はOSキーリングの service/account を参照する。
func IMAPPassword(fromEnv, service, account string) (string, error) {
	if strings.TrimSpace(fromEnv) != "" {
		return fromEnv, nil
	}
	if strings.TrimSpace(service) == "" || strings.TrimSpace(account) == "" {
		return "", ErrPasswordNotFound
	}

	pw, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrPasswordNotFound
		}
		return "", fmt.Errorf("キーリングの参照に失敗しました: %w", err)
	}
	if strings.TrimSpace(pw) == "" {
		return "", ErrPasswordNotFound
	}
	return pw, nil
}

// SetIMAPPassword はIMAPパスワードをOSキーリングに保存する。
func SetIMAPPassword(service, account, password string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(service, account, password)
}
