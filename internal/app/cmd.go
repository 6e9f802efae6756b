package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとページを配信する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッション等のクリーンアップを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新まで適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを叩いて終了する。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 未指定や未知の値はCommandServeにフォールバックし、2つ目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) > 0 {
		if cmd, ok := commands[args[0]]; ok {
			return cmd
		}
	}
	return CommandServe
}

// NeedsConfig はコマンドが環境変数の完全な読み込みを必要とするかを返す。
// healthcheckはSERVER_PORTだけで動く。
func (c Command) NeedsConfig() bool {
	return c != CommandHealthcheck
}
