package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は取り込みワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はYAMLファイルから設定を投入することを示す。
	CommandSeed Command = "seed"
	// CommandImport は生メールファイルを手動でリードとして取り込むことを示す。
	CommandImport Command = "import"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandGmailAuth はGmailの同意URL表示と認可コード交換を行う。
	CommandGmailAuth Command = "gmail-auth"
	// CommandIMAPPassword は標準入力からIMAPパスワードを読み取りキーリングに保存する。
	CommandIMAPPassword Command = "imap-password"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "seed":
		return CommandSeed
	case "import":
		return CommandImport
	case "healthcheck":
		return CommandHealthcheck
	case "gmail-auth":
		return CommandGmailAuth
	case "imap-password":
		return CommandIMAPPassword
	default:
		return CommandServe
	}
}
