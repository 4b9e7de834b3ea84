package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/vmgc/heap"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/inhies/go-bytesize"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminalOutput() bool {
	stdout := os.Stdout.Fd()
	return isatty.IsTerminal(stdout) || isatty.IsCygwinTerminal(stdout)
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() error {
	if viper.GetBool("no-color") || !isTerminalOutput() {
		color.NoColor = true
	}
	switch strings.ToLower(viper.GetString("output")) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown output format: %s", viper.GetString("output"))
	}
	return nil
}

// parseCapacity accepts a plain byte count or a size such as "64KB".
func parseCapacity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	size, err := bytesize.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid capacity %q: %w", s, err)
	}
	return int(size), nil
}

func newLogger() (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("log-level")))
	if err != nil {
		return zerolog.Nop(), err
	}
	out := zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: color.NoColor,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// newHeap builds a heap from the global configuration.
func newHeap(opts ...heap.Option) (*heap.Heap, error) {
	capacity, err := parseCapacity(viper.GetString("capacity"))
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	opts = append(opts, heap.WithLogger(logger))
	if viper.GetBool("stress-collect") {
		opts = append(opts, heap.WithStressCollect())
	}
	return heap.New(capacity, opts...)
}

func getOutputJSON(result any) ([]byte, error) {
	if color.NoColor {
		return json.MarshalIndent(result, "", "  ")
	}
	return prettyjson.Marshal(result)
}

func printJSON(result any) error {
	data, err := getOutputJSON(result)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func formatBytes(n int) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func usage(h *heap.Heap) string {
	pct := 0.0
	if h.Capacity() > 0 {
		pct = 100 * float64(h.Used()) / float64(h.Capacity())
	}
	text := fmt.Sprintf("%s / %s (%.1f%%, %s objects)",
		formatBytes(h.Used()), formatBytes(h.Capacity()), pct, humanize.Comma(int64(h.Len())))
	switch {
	case pct >= 90:
		return red(text)
	case pct >= 60:
		return yellow(text)
	default:
		return green(text)
	}
}

func textOutput() bool {
	return strings.ToLower(viper.GetString("output")) == "text" ||
		(viper.GetString("output") == "" && isTerminalOutput())
}
