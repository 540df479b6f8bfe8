// Package seed はYAMLファイルから設定を読み込み、settingsテーブルへ書き込む。
package seed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/repository"
)

// File はシードファイルの内容。省略した項目は現在の設定値を維持する。
type File struct {
	KeywordConfig       *model.KeywordConfig `yaml:"keywordConfig"`
	CityList            []string             `yaml:"cityList"`
	Threshold           *int                 `yaml:"threshold"`
	PollIntervalMinutes *int                 `yaml:"pollIntervalMinutes"`
	RateLimitPerHour    *int                 `yaml:"rateLimitPerHour"`
	StoreRawEmail       *bool                `yaml:"storeRawEmail"`
	IngestionEnabled    *bool                `yaml:"ingestionEnabled"`
	SMSTargets          []string             `yaml:"smsTargets"`
	EmailTargets        []string             `yaml:"emailTargets"`
}

// LoadFile はYAMLのシードファイルを読み込んで検証する。
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("シードファイルの読み込みに失敗しました: %w", err)
	}
	return Parse(data)
}

// Parse はYAMLを解析して検証する。未知のキーはエラーにする。
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("シードファイルの解析に失敗しました: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if f.Threshold != nil && *f.Threshold < 0 {
		return fmt.Errorf("threshold は0以上である必要があります: %d", *f.Threshold)
	}
	if f.PollIntervalMinutes != nil && *f.PollIntervalMinutes < 1 {
		return fmt.Errorf("pollIntervalMinutes は1以上である必要があります: %d", *f.PollIntervalMinutes)
	}
	if f.RateLimitPerHour != nil && *f.RateLimitPerHour < 0 {
		return fmt.Errorf("rateLimitPerHour は0以上である必要があります: %d", *f.RateLimitPerHour)
	}
	return nil
}

// Apply はシードの値をsに上書きする。カーソルは変更しない。
func (f *File) Apply(s *model.Settings) {
	if f.KeywordConfig != nil {
		s.KeywordConfig = *f.KeywordConfig
	}
	if f.CityList != nil {
		s.CityList = f.CityList
	}
	if f.Threshold != nil {
		s.Threshold = *f.Threshold
	}
	if f.PollIntervalMinutes != nil {
		s.PollIntervalMinutes = *f.PollIntervalMinutes
	}
	if f.RateLimitPerHour != nil {
		s.RateLimitPerHour = *f.RateLimitPerHour
	}
	if f.StoreRawEmail != nil {
		s.StoreRawEmail = *f.StoreRawEmail
	}
	if f.IngestionEnabled != nil {
		s.IngestionEnabled = *f.IngestionEnabled
	}
	if f.SMSTargets != nil {
		s.SMSTargets = f.SMSTargets
	}
	if f.EmailTargets != nil {
		s.EmailTargets = f.EmailTargets
	}
}

// Run はシードファイルを現在の設定に適用して保存する。
func Run(ctx context.Context, repo repository.SettingsRepository, path string, logger *slog.Logger) error {
	f, err := LoadFile(path)
	if err != nil {
		return err
	}

	settings, err := repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	f.Apply(settings)

	if err := repo.Update(ctx, settings); err != nil {
		return fmt.Errorf("設定の保存に失敗しました: %w", err)
	}

	logger.Info("シードファイルを適用しました",
		slog.String("path", path),
		slog.Int("cities", len(settings.CityList)),
		slog.Int("threshold", settings.Threshold),
		slog.Int("sms_targets", len(settings.SMSTargets)),
		slog.Int("email_targets", len(settings.EmailTargets)),
	)
	return nil
}
