package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/ndnrevoke/internal/ndn"
	"github.com/danmuck/ndnrevoke/internal/ndn/wsface"
	"github.com/danmuck/ndnrevoke/internal/protocol/session"
	"github.com/danmuck/ndnrevoke/internal/security"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// trust loads the keychain in dir and builds a validator from schemaPath, or
// from the keychain's self-signed certificates when schemaPath is empty.
func trust(dir, schemaPath string) (*security.KeyChain, *security.SchemaValidator, error) {
	kc := security.NewKeyChain()
	if err := kc.Load(dir); err != nil {
		return nil, nil, fmt.Errorf("load keychain %s: %w", dir, err)
	}
	var schema *security.TrustSchema
	if schemaPath != "" {
		var err error
		if schema, err = security.LoadTrustSchema(schemaPath); err != nil {
			return nil, nil, err
		}
	} else {
		anchors := kc.Anchors()
		if len(anchors) == 0 {
			return nil, nil, fmt.Errorf("keychain %s has no self-signed certificate to trust", dir)
		}
		schema = security.DefaultTrustSchema(anchors...)
	}
	return kc, security.NewValidator(schema, kc), nil
}

// node is a loop driven in the background plus a face attached to the hub.
type node struct {
	loop *ndn.Loop
	face *wsface.Face
}

func attach(ctx context.Context, hubURL, caFile string, sess session.Config) (*node, error) {
	opts := wsface.Options{URL: hubURL, Backoff: sess.Backoff}
	if caFile != "" {
		tlsConfig, err := wsface.ClientTLSConfig(caFile)
		if err != nil {
			return nil, err
		}
		opts.Dialer = &websocket.Dialer{TLSClientConfig: tlsConfig, HandshakeTimeout: 10 * time.Second}
	}
	loop := ndn.NewLoop()
	go func() { _ = loop.Run(ctx) }()
	face, err := wsface.Dial(ctx, loop, opts)
	if err != nil {
		return nil, fmt.Errorf("dial hub %s: %w", hubURL, err)
	}
	return &node{loop: loop, face: face}, nil
}

// do runs fn on the loop and waits for its error.
func (n *node) do(fn func() error) error {
	errc := make(chan error, 1)
	n.loop.Post(func() { errc <- fn() })
	return <-errc
}

func (n *node) close() {
	_ = n.do(n.face.Close)
}
