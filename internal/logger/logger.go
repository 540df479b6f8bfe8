package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions はローテーション付きログファイルの設定。
type FileOptions struct {
	Path       string // 空の場合はファイルに出力しない
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// writerが指定された場合はそのwriterに出力する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w)
	slog.SetDefault(logger)
}

// NewWriter はwとローテーション付きログファイルの両方に書き込むWriterを返す。
// opts.Pathが空の場合はwをそのまま返す。
// 返されるio.Closerはファイルを閉じる。ファイルが無い場合は何もしない。
func NewWriter(w io.Writer, opts FileOptions) (io.Writer, io.Closer) {
	if opts.Path == "" {
		return w, nopCloser{}
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(w, file), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
