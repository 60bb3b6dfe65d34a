// Package zap adapts a zap logger to tiered.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/tiered"
)

var _ tiered.Logger = Logger{}

type Logger struct{ L *zap.Logger }

func (z Logger) Debug(msg string, f tiered.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f tiered.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f tiered.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f tiered.Fields) { z.L.Error(msg, zf(f)...) }

// zf converts fields in key order; an "err" error becomes zap.Error.
func zf(f tiered.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok && k == "err" {
			out = append(out, zap.Error(err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
