// Narratorctl is the command-line client for narratord.
//
// Usage:
//
//	narratorctl say --text "Hello there" [--voice en_US-lessac-high] [--out tts.mp3]
//	narratorctl say --text "Hello" --speed 1.2 --gain 0.8 --eq 3,0,-2,0,1 --play
//	narratorctl voices
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/nadzzz/narrator/internal/audio"
	"github.com/nadzzz/narrator/internal/audio/fx"
	"github.com/nadzzz/narrator/internal/audio/preview"
	"github.com/nadzzz/narrator/internal/audio/render"
	"github.com/nadzzz/narrator/internal/client"
	"github.com/nadzzz/narrator/internal/config"
	"github.com/nadzzz/narrator/internal/message"
)

var version = "dev"

var (
	bold   = color.New(color.Bold)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func usage() {
	fmt.Fprintf(os.Stderr, "narratorctl %s\n\nUsage:\n  narratorctl [--config file] say [flags]\n  narratorctl [--config file] voices\n", version)
	flag.PrintDefaults()
}

func main() {
	configFile := flag.String("config", "", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	config.SetupLogging(config.LoggingConfig{Level: level, Format: "text"})

	cfg, err := config.Load(*configFile)
	if err != nil {
		red.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "say":
		err = say(ctx, cfg, args[1:])
	case "voices":
		err = listVoices(ctx, cfg, args[1:])
	case "version":
		fmt.Printf("narratorctl %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		red.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(cfg *config.Config, server string) *client.Client {
	ccfg := cfg.Client
	if server != "" {
		ccfg.ServerURL = server
	}
	return client.New(ccfg, client.WithMaxChars(cfg.Server.MaxChars))
}

func say(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	server := fs.String("server", "", "daemon URL (overrides client.server_url)")
	text := fs.String("text", "", "text to speak; read from stdin when empty")
	voice := fs.String("voice", "", "voice key")
	out := fs.String("out", "", "output file or directory (default: tts.mp3 / tts_edited.wav)")
	speed := fs.Float64("speed", 1, "playback speed")
	gain := fs.Float64("gain", 1, "linear output gain")
	eq := fs.String("eq", "", "band gains in dB, comma separated, 60Hz..10kHz")
	play := fs.Bool("play", false, "play the result with the live preview graph")
	_ = fs.Parse(args)

	params, err := buildParams(*speed, *gain, *eq)
	if err != nil {
		return err
	}

	input := *text
	if input == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		input = string(b)
	}

	c := newClient(cfg, *server)
	cyan.Println("Submitting text...")
	url, err := c.Submit(ctx, message.SynthesisRequest{Text: input, Voice: *voice})
	if err != nil {
		return err
	}
	slog.Debug("job submitted", "download_url", url)

	cyan.Println("Waiting for audio...")
	data, err := c.Wait(ctx, url)
	if err != nil {
		return err
	}
	green.Printf("Received %d bytes\n", len(data))

	result, err := render.Export(ctx, data, params)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = result.Name
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, result.Name)
	}
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	bold.Print("Saved ")
	fmt.Println(path)

	if !*play {
		return nil
	}
	return playback(ctx, data, params)
}

func playback(ctx context.Context, data []byte, params fx.Params) error {
	sig, err := audio.Decode(ctx, data)
	if err != nil {
		return err
	}

	player := preview.NewPlayer(preview.OpenSpeaker)
	defer player.Close()
	if err := player.Load(sig); err != nil {
		return err
	}
	if err := player.SetParams(params); err != nil {
		return err
	}
	if err := player.Play(); err != nil {
		return err
	}
	yellow.Printf("Playing %s of audio, Ctrl+C to stop\n", sig.Duration().Round(10*time.Millisecond))

	if err := player.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			return err
		}
		yellow.Printf("Stopped at %s\n", player.Position().Round(10*time.Millisecond))
	}
	return nil
}

func listVoices(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("voices", flag.ExitOnError)
	server := fs.String("server", "", "daemon URL (overrides client.server_url)")
	_ = fs.Parse(args)

	cat, err := newClient(cfg, *server).Voices(ctx)
	if err != nil {
		return err
	}
	for _, v := range cat.All() {
		bold.Printf("%-32s", v.Key)
		fmt.Println(v.Label())
	}
	return nil
}
