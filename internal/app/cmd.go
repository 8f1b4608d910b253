package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandDispatch は配信サイクルを1回実行して終了することを示す。
	CommandDispatch Command = "dispatch"
	// CommandWorker はワーカーモード（定期配信）で起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// RunFlags はサブコマンドに続くフラグを表す。
type RunFlags struct {
	// DryRun がtrueの場合、配信はDB書き込みとメール送信を行わない。
	DryRun bool
	// NoTranslate がtrueの場合、タイトル翻訳を行わない。
	NoTranslate bool
}

// ParseCommand はコマンドライン引数からサブコマンドとフラグを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) (Command, RunFlags) {
	cmd := CommandServe
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			cmd = CommandServe
		case "dispatch":
			cmd = CommandDispatch
		case "worker":
			cmd = CommandWorker
		case "migrate":
			cmd = CommandMigrate
		case "healthcheck":
			cmd = CommandHealthcheck
		}
	}

	var flags RunFlags
	for _, arg := range args {
		switch arg {
		case "--dry-run":
			flags.DryRun = true
		case "--no-translate":
			flags.NoTranslate = true
		}
	}

	return cmd, flags
}
