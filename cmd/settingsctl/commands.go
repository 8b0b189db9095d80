package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"kv-settings/dict"
	"kv-settings/persist"
	"kv-settings/settings"
)

func (a *app) encode(args []string) error {
	var outPath string
	flagSet := pflag.NewFlagSet("encode", pflag.ContinueOnError)
	flagSet.StringVarP(&outPath, "out", "o", "", "write the message to this file instead of printing it as hex")
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if flagSet.NArg() == 0 {
		return fmt.Errorf("%w: encode needs at least one key=type:value", errUsage)
	}

	schema, err := a.schemaIfConfigured()
	if err != nil {
		return err
	}
	d, err := a.newDictionary()
	if err != nil {
		return err
	}
	buf := make([]byte, a.cfg.Codec.Capacity)
	d.BeginWrite(buf)
	for _, arg := range flagSet.Args() {
		if err := writeArg(d, schema, arg); err != nil {
			return err
		}
	}
	message := buf[:d.EndWrite()]
	if d.Dropped() > 0 {
		a.log.Warn("message full, tuples dropped",
			zap.Int("dropped", d.Dropped()),
			zap.Int("capacity", d.Capacity()))
	}

	if outPath == "" {
		_, err = fmt.Fprintln(a.out, hex.EncodeToString(message))
		return err
	}
	return os.WriteFile(outPath, message, 0o644)
}

// writeArg parses key=type:value. Types are int, uint, string and bytes
// (hex encoded).
func writeArg(d *dict.Dictionary, schema *settings.Schema, arg string) error {
	name, typed, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("%w: %q is not key=type:value", errUsage, arg)
	}
	typ, raw, ok := strings.Cut(typed, ":")
	if !ok {
		return fmt.Errorf("%w: %q is not key=type:value", errUsage, arg)
	}
	key := parseKey(schema, name)

	switch typ {
	case "int":
		n, err := strconv.ParseInt(raw, 0, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		return d.WriteInt32(key, int32(n))
	case "uint":
		n, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		return d.WriteUint32(key, uint32(n))
	case "string", "cstring":
		return d.WriteCString(key, raw)
	case "bytes":
		data, err := hex.DecodeString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		return d.WriteBytes(key, data)
	default:
		return fmt.Errorf("%w: unknown type %q in %q", errUsage, typ, arg)
	}
}

// parseKey accepts a number, a schema setting name or any other name,
// which is hashed the way the schema hashes names without a message key.
func parseKey(schema *settings.Schema, name string) uint32 {
	if n, err := strconv.ParseUint(name, 0, 32); err == nil {
		return uint32(n)
	}
	if schema != nil {
		if _, ok := schema.Lookup(name); ok {
			return schema.KeyFor(name)
		}
	}
	return settings.KeyFromName(name)
}

func (a *app) decode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: decode <file>", errUsage)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	d, err := a.newDictionary()
	if err != nil {
		return err
	}
	if err := d.BeginRead(data); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	for t, ok := d.ReadFirst(); ok; t, ok = d.ReadNext() {
		value := t.String()
		if t.Type == dict.TypeBytes {
			value = hex.EncodeToString(t.Bytes())
		}
		if _, err := fmt.Fprintf(a.out, "%d\t%s\t%s\n", t.Key, t.Type, value); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) apply(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: apply <file>", errUsage)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	schema, err := a.schemaIfConfigured()
	if err != nil {
		return err
	}
	if schema == nil {
		return fmt.Errorf("%w: apply needs schema in the configuration", errUsage)
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	m := settings.NewManager(schema, store,
		settings.WithRecordSize(a.cfg.Codec.RecordSize),
		settings.WithLogger(a.log),
		settings.WithRecorder(a.recorder))
	if err := m.Init(); err != nil {
		return err
	}
	result, err := m.HandleInbound(data)
	if err != nil {
		return err
	}
	if err := m.Deinit(); err != nil {
		return err
	}
	a.log.Info("message applied",
		zap.String("file", args[0]),
		zap.Int("updated", result.Updated))

	for _, setting := range schema.Settings {
		v, err := m.Value(setting.Name)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(a.out, "%s=%v\n", setting.Name, v); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) dump(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: dump takes no arguments", errUsage)
	}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snapshot, err := store.Snapshot()
	if err != nil {
		return err
	}
	diag, err := persist.Diagnose(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, diag)
	return err
}

func (a *app) newDictionary() (*dict.Dictionary, error) {
	return dict.New(
		dict.WithRecordSize(a.cfg.Codec.RecordSize),
		dict.WithLogger(a.log),
		dict.WithRecorder(a.recorder))
}

func (a *app) schemaIfConfigured() (*settings.Schema, error) {
	if a.cfg.Schema == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	schema, err := settings.ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.Schema, err)
	}
	return schema, nil
}

func (a *app) openStore() (*persist.Store, error) {
	opts := []persist.Option{
		persist.WithLogger(a.log),
		persist.WithRecorder(a.recorder),
	}
	if a.cfg.Persist.Journal != "" {
		journal, err := persist.OpenFileJournal(a.cfg.Persist.Journal,
			persist.WithDirectIO(a.cfg.Persist.DirectIO),
			persist.WithJournalLogger(a.log))
		if err != nil {
			return nil, err
		}
		store, err := persist.New(append(opts, persist.WithJournal(journal))...)
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
		return store, nil
	}
	return persist.New(opts...)
}
