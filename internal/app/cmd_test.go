package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  Command
		wantFlag RunFlags
	}{
		{name: "引数なしはserve", args: nil, wantCmd: CommandServe},
		{name: "serve", args: []string{"serve"}, wantCmd: CommandServe},
		{name: "dispatch", args: []string{"dispatch"}, wantCmd: CommandDispatch},
		{name: "worker", args: []string{"worker"}, wantCmd: CommandWorker},
		{name: "migrate", args: []string{"migrate"}, wantCmd: CommandMigrate},
		{name: "healthcheck", args: []string{"healthcheck"}, wantCmd: CommandHealthcheck},
		{name: "未知のコマンドはserve", args: []string{"unknown"}, wantCmd: CommandServe},
		{
			name:     "dispatchにdry-runフラグ",
			args:     []string{"dispatch", "--dry-run"},
			wantCmd:  CommandDispatch,
			wantFlag: RunFlags{DryRun: true},
		},
		{
			name:     "workerに翻訳無効フラグ",
			args:     []string{"worker", "--no-translate"},
			wantCmd:  CommandWorker,
			wantFlag: RunFlags{NoTranslate: true},
		},
		{
			name:     "複数フラグ",
			args:     []string{"dispatch", "--dry-run", "--no-translate"},
			wantCmd:  CommandDispatch,
			wantFlag: RunFlags{DryRun: true, NoTranslate: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, flags := ParseCommand(tt.args)
			if cmd != tt.wantCmd {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, cmd, tt.wantCmd)
			}
			if flags != tt.wantFlag {
				t.Errorf("ParseCommand(%v) flags = %+v, want %+v", tt.args, flags, tt.wantFlag)
			}
		})
	}
}
