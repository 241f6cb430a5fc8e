package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// Settings reads and writes the system key/value settings.
type Settings struct {
	store store.Store
	audit *Audit
}

// All returns every stored setting.
func (s *Settings) All(ctx context.Context, actor *Actor) (map[string]string, error) {
	if err := Authorize(actor, OpReadSettings, Resource{}); err != nil {
		return nil, err
	}
	out, err := s.store.Settings(ctx)
	if err != nil {
		return nil, settle("read settings", err)
	}
	return out, nil
}

// Set stores one known setting.
func (s *Settings) Set(ctx context.Context, actor *Actor, key, value string) error {
	if err := Authorize(actor, OpWriteSettings, Resource{}); err != nil {
		return err
	}
	if !model.KnownSetting(key) {
		return errInvalid("Pengaturan %q tidak dikenal", key)
	}
	value = strings.TrimSpace(value)
	if key == model.SettingHourCap && value != "" {
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return errInvalid("Batas jam harus berupa bilangan bulat tidak negatif")
		}
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.Setting(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.SetSetting(ctx, key, value); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, actor, ActionUpdateSetting, "Setting", 0, map[string]interface{}{
			"key": key,
			"old": old,
			"new": value,
		})
	})
	return settle("set setting", err)
}
