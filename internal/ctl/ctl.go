// Package ctl implements the tieredctl commands against an open DB.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/tiered"
	"github.com/unkn0wn-root/tiered/value"
)

var (
	ErrUsage    = errors.New("usage")
	ErrNotFound = errors.New("not found")
)

const Usage = `tieredctl [flags] <command> [args]

commands:
  get   <model> <id> [attr...]
  set   <model> <id|-> attr=value...
  incr  <model> <id> <attr> <delta>
  find  <model> <attr> <value>
  del   <model> <id>
  reset`

// Run executes one command and writes its JSON result to out.
func Run(ctx context.Context, db *tiered.DB, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, args := args[0], args[1:]
	var (
		res any
		err error
	)
	switch cmd {
	case "get":
		if len(args) < 2 {
			return fmt.Errorf("%w: get <model> <id> [attr...]", ErrUsage)
		}
		res, err = get(ctx, db, args[0], args[1], args[2:])
	case "set":
		if len(args) < 3 {
			return fmt.Errorf("%w: set <model> <id|-> attr=value...", ErrUsage)
		}
		res, err = set(ctx, db, args[0], args[1], args[2:])
	case "incr":
		if len(args) != 4 {
			return fmt.Errorf("%w: incr <model> <id> <attr> <delta>", ErrUsage)
		}
		res, err = incr(ctx, db, args[0], args[1], args[2], args[3])
	case "find":
		if len(args) != 3 {
			return fmt.Errorf("%w: find <model> <attr> <value>", ErrUsage)
		}
		res, err = find(ctx, db, args[0], args[1], args[2])
	case "del":
		if len(args) != 2 {
			return fmt.Errorf("%w: del <model> <id>", ErrUsage)
		}
		err = del(ctx, db, args[0], args[1])
	case "reset":
		err = db.Reset(ctx)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
	if err != nil || res == nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func get(ctx context.Context, db *tiered.DB, model, id string, names []string) (value.Values, error) {
	in, err := db.Load(model, id)
	if err != nil {
		return nil, err
	}
	vals, found, err := in.Fetch(ctx, tiered.FetchOptions{Names: names})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s %s: %w", model, id, ErrNotFound)
	}
	return vals, nil
}

func parseAssignments(pairs []string) (value.Values, error) {
	data := make(value.Values, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected attr=value, got %q", ErrUsage, p)
		}
		if v == "" {
			data[k] = nil
			continue
		}
		data[k] = v
	}
	return data, nil
}

func set(ctx context.Context, db *tiered.DB, model, id string, pairs []string) (value.Values, error) {
	data, err := parseAssignments(pairs)
	if err != nil {
		return nil, err
	}
	var in *tiered.Instance
	if id == "-" {
		in, err = db.New(ctx, model, nil)
	} else {
		in, err = db.Load(model, id)
	}
	if err != nil {
		return nil, err
	}
	if err := in.Save(ctx, data, tiered.Raw); err != nil {
		return nil, err
	}
	return in.Values(tiered.Raw), nil
}

func incr(ctx context.Context, db *tiered.DB, model, id, attr, delta string) (value.Values, error) {
	by, err := strconv.ParseFloat(delta, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: delta %q: %v", ErrUsage, delta, err)
	}
	in, err := db.Load(model, id)
	if err != nil {
		return nil, err
	}
	if err := in.Incr(attr, by); err != nil {
		return nil, err
	}
	if err := in.Save(ctx, nil, tiered.Raw); err != nil {
		return nil, err
	}
	return get(ctx, db, model, id, []string{attr})
}

func find(ctx context.Context, db *tiered.DB, model, attr, v string) (value.Values, error) {
	in, ok, err := db.Find(ctx, model, attr, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s.%s=%s: %w", model, attr, v, ErrNotFound)
	}
	vals, found, err := in.Fetch(ctx, tiered.FetchOptions{})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s.%s=%s: %w", model, attr, v, ErrNotFound)
	}
	return vals, nil
}

func del(ctx context.Context, db *tiered.DB, model, id string) error {
	in, err := db.Load(model, id)
	if err != nil {
		return err
	}
	err = in.Destroy(ctx)
	if errors.Is(err, tiered.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", model, id, ErrNotFound)
	}
	return err
}
