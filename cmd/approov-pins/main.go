// Copyright 2024 Contributors to the Approov project.
// SPDX-License-Identifier: Apache-2.0

// approov-pins prints the public-key-sha256 pins of a server's certificate
// chain and checks a server against a pin set, the same way mediated requests
// are pinned.
package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/approov/approov-service-go/pinning"
	"github.com/approov/approov-service-go/sdk"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var flagAddr *cli.StringFlag = &cli.StringFlag{
	Name:     "addr",
	Usage:    "Server address (host or host:port)",
	Required: true,
}

var flagServerName *cli.StringFlag = &cli.StringFlag{
	Name:  "server-name",
	Usage: "TLS server name, defaults to the host of --addr",
}

var flagInsecure *cli.BoolFlag = &cli.BoolFlag{
	Name:  "insecure",
	Usage: "Do not verify the server chain before printing its pins",
}

var flagPinsFile *cli.StringFlag = &cli.StringFlag{
	Name:     "pins-file",
	Usage:    `JSON pin set, e.g. {"api.example.com": ["<pin>"], "*": []}`,
	Required: true,
}

var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 10 * time.Second,
}

var flagDebug *cli.BoolFlag = &cli.BoolFlag{
	Name: "debug",
}

func main() {
	app := &cli.App{
		Name:           "approov-pins",
		Usage:          "inspect and check certificate pins",
		DefaultCommand: "show",
		Flags: []cli.Flag{
			flagDebug,
		},
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the pin of every certificate in the server chain",
				Flags: []cli.Flag{
					flagAddr,
					flagServerName,
					flagInsecure,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					addr, serverName, err := target(cCtx)
					if err != nil {
						return err
					}

					pins, err := chainPins(addr, &tls.Config{
						ServerName:         serverName,
						InsecureSkipVerify: cCtx.Bool(flagInsecure.Name),
						MinVersion:         tls.VersionTLS12,
					}, cCtx.Duration(flagTimeout.Name))
					if err != nil {
						return err
					}

					for _, p := range pins {
						fmt.Printf("%s\t%s\n", p.Pin, p.Subject)
					}

					return nil
				},
			},
			{
				Name:  "check",
				Usage: "connect to the server with the pins of a pin set enforced",
				Flags: []cli.Flag{
					flagAddr,
					flagServerName,
					flagPinsFile,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					logger, err := newLogger(cCtx.Bool(flagDebug.Name))
					if err != nil {
						return err
					}
					defer logger.Sync() //nolint:errcheck

					addr, serverName, err := target(cCtx)
					if err != nil {
						return err
					}

					pins, err := loadPins(cCtx.String(flagPinsFile.Name))
					if err != nil {
						return err
					}

					v := pinning.NewVerifier(nil, pins, logger)

					_, err = chainPins(addr, &tls.Config{
						ServerName: serverName,
						MinVersion: tls.VersionTLS12,
						VerifyConnection: func(cs tls.ConnectionState) error {
							return v.VerifyConnectionHost(serverName, cs)
						},
					}, cCtx.Duration(flagTimeout.Name))
					if err != nil {
						return err
					}

					fmt.Printf("%s: pins accepted\n", serverName)

					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}

	return cfg.Build()
}

// target returns the dial address (port 443 unless given) and server name
func target(cCtx *cli.Context) (string, string, error) {
	addr := cCtx.String(flagAddr.Name)

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		addr = net.JoinHostPort(addr, "443")
	}

	if host == "" {
		return "", "", fmt.Errorf("no host in address %q", cCtx.String(flagAddr.Name))
	}

	serverName := cCtx.String(flagServerName.Name)
	if serverName == "" {
		serverName = host
	}

	return addr, serverName, nil
}

// staticPins is a PinSource over a pin set read once from a file
type staticPins sdk.PinSet

func (o staticPins) Pins() sdk.PinSet {
	return sdk.PinSet(o)
}

func loadPins(path string) (staticPins, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pins: %w", err)
	}

	var pins sdk.PinSet
	if err := json.Unmarshal(data, &pins); err != nil {
		return nil, fmt.Errorf("decoding pins from %s: %w", path, err)
	}

	return staticPins(pins), nil
}

type certPin struct {
	Pin     string
	Subject string
}

// chainPins completes a TLS handshake with addr and returns the pin of every
// certificate the server presented, leaf first.
func chainPins(addr string, cfg *tls.Config, timeout time.Duration) ([]certPin, error) {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	var pins []certPin
	for _, cert := range conn.ConnectionState().PeerCertificates {
		pins = append(pins, certPin{
			Pin:     pinning.PublicKeyHash(cert),
			Subject: cert.Subject.String(),
		})
	}

	return pins, nil
}
