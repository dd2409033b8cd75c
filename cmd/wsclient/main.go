// Command wsclient is a small interactive/echo demonstration client for the
// github.com/vrtql/wsc WebSocket engine: it dials a server, sends one
// message (or runs a simple echo loop), and prints whatever it receives.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/xdg"

	"github.com/vrtql/wsc/pkg/websocket"
)

const (
	configDirName  = "wsclient"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "wsclient",
		Usage:   "Connect to a WebSocket server and send or echo messages",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action:  run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	path := configFile()

	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "human-readable console logging instead of JSON",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "WebSocket server URL (ws:// or wss://)",
			Value: "ws://127.0.0.1:9001",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_URL"),
				toml.TOML("client.url", path),
			),
		},
		&cli.StringFlag{
			Name:  "message",
			Usage: "text message to send once connected",
			Value: "hello",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_MESSAGE"),
				toml.TOML("client.message", path),
			),
		},
		&cli.BoolFlag{
			Name:  "echo",
			Usage: "after sending, loop printing every received message until the server closes",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_ECHO"),
				toml.TOML("client.echo", path),
			),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per read/write socket timeout",
			Value: 30 * time.Second,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSCLIENT_TIMEOUT"),
				toml.TOML("client.timeout", path),
			),
		},
	}
}

// configFile returns the path to the app's configuration file, creating an
// empty one under the user's XDG config home if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		fmt.Printf("warning: failed to resolve config file path: %v\n", err)
		return altsrc.StringSourcer("")
	}
	return altsrc.StringSourcer(path)
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := initLog(cmd.Bool("dev"))

	url := cmd.String("url")
	logger.Info().Str("url", url).Msg("connecting")

	conn, err := websocket.Dial(ctx, url, websocket.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Disconnect()

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		if err := conn.SetTimeout(timeout); err != nil {
			return fmt.Errorf("failed to set timeout: %w", err)
		}
	}

	msg := cmd.String("message")
	if err := conn.SendText([]byte(msg)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	logger.Info().Str("message", msg).Msg("sent")

	if !cmd.Bool("echo") {
		reply, err := conn.RecvMessage()
		if err != nil {
			return fmt.Errorf("failed to receive reply: %w", err)
		}
		logger.Info().Str("type", reply.Type.String()).Bytes("payload", reply.Payload).Msg("received")
		return nil
	}

	for {
		reply, err := conn.RecvMessage()
		if err != nil {
			logger.Info().Err(err).Msg("connection ended")
			return nil
		}
		logger.Info().Str("type", reply.Type.String()).Bytes("payload", reply.Payload).Msg("received")

		switch reply.Type {
		case websocket.Text:
			err = conn.SendText(reply.Payload)
		case websocket.Binary:
			err = conn.SendBinary(reply.Payload)
		}
		if err != nil {
			logger.Err(err).Msg("failed to echo message back")
			return err
		}
	}
}

// initLog mirrors the dev/production logging split used elsewhere in this
// ecosystem: a human-readable console writer in dev mode, plain JSON to
// stderr otherwise.
func initLog(devMode bool) zerolog.Logger {
	if devMode {
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
