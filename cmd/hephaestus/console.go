package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hephaestus-engine/hephaestus/internal/dispatcher"
)

// runConsole reads one host command per line from r and writes one reply line
// per command to w:
//
//	:SPAWN: crane      ->  :SPAWN: OK 3f2a...
//	:PLAY: bad wave    ->  :PLAY: ERROR unknown view
//
// It returns when r is exhausted or ctx is done.
func runConsole(ctx context.Context, r io.Reader, w io.Writer, d *dispatcher.Dispatcher, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		e, ok := dispatcher.ParseEvent(scanner.Text())
		if !ok {
			continue
		}
		result, err := d.Dispatch(e)
		if _, werr := fmt.Fprintln(w, reply(e.Command, result, err)); werr != nil {
			logger.Error("Failed to write console reply", "command", e.Command, "error", werr)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Console input failed", "error", err)
	}
}

func reply(command string, result any, err error) string {
	if err != nil {
		return command + " ERROR " + err.Error()
	}
	switch v := result.(type) {
	case nil:
		return command + " OK"
	case string:
		return command + " OK " + v
	case fmt.Stringer:
		return command + " OK " + v.String()
	default:
		b, jerr := json.Marshal(v)
		if jerr != nil {
			return command + " OK " + fmt.Sprint(v)
		}
		return command + " OK " + strings.TrimSpace(string(b))
	}
}
