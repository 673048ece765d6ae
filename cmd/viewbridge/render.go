package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vango-dev/viewbridge/internal/errors"
	"github.com/vango-dev/viewbridge/pkg/ipc"
	"github.com/vango-dev/viewbridge/pkg/protocol"
)

func pageCmd(flags *globalFlags) *cobra.Command {
	var (
		props   string
		headers bool
	)

	cmd := &cobra.Command{
		Use:   "page <id>",
		Short: "Render a page through the render service",
		Long: `Render a page and print the document to stdout.

Examples:
  viewbridge page home
  viewbridge page users/index --props '{"users": ["ada", "grace"]}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decodeProps(props)
			if err != nil {
				return err
			}
			return withClient(flags, func(ctx context.Context, c *ipc.Client) error {
				doc, err := c.RenderPage(ctx, args[0], p)
				if err != nil {
					return renderFailure(err)
				}
				return printDocument(cmd.OutOrStdout(), doc, headers)
			})
		},
	}

	cmd.Flags().StringVarP(&props, "props", "p", "{}", "Page props as a JSON object")
	cmd.Flags().BoolVar(&headers, "headers", false, "Print response headers to stderr")
	return cmd
}

func streamCmd(flags *globalFlags) *cobra.Command {
	var (
		file    string
		headers bool
	)

	cmd := &cobra.Command{
		Use:   "stream [operations]",
		Short: "Render a batch of patch operations",
		Long: `Render patch operations and print the envelopes to stdout.

Operations are a JSON array, or an object with an "operations" array,
given as the argument, read from --file, or read from stdin.

Examples:
  viewbridge stream '[{"action":"update","target":"flash","fragment":"components/Flash","props":{"message":"hi"}}]'
  viewbridge stream --file ops.json
  echo '[{"action":"remove","targets":".row"}]' | viewbridge stream`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			switch {
			case len(args) == 1:
				data = []byte(args[0])
			case file != "":
				data, err = os.ReadFile(file)
			default:
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			ops, err := decodeOperations(data)
			if err != nil {
				return err
			}
			return withClient(flags, func(ctx context.Context, c *ipc.Client) error {
				doc, err := c.RenderStream(ctx, ops)
				if err != nil {
					return renderFailure(err)
				}
				return printDocument(cmd.OutOrStdout(), doc, headers)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read operations from a file")
	cmd.Flags().BoolVar(&headers, "headers", false, "Print response headers to stderr")
	return cmd
}

func healthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the render service is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(flags, func(ctx context.Context, c *ipc.Client) error {
				h, err := c.Health(ctx)
				if err != nil {
					return renderFailure(err)
				}
				success("render service %s (protocol %s)", h.Status, h.Protocol)
				return nil
			})
		},
	}
}

// withClient runs fn with a client for the configured socket and a
// context cancelled on interrupt.
func withClient(flags *globalFlags, fn func(ctx context.Context, c *ipc.Client) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	c, err := ipc.NewClient(cfg.ClientConfig())
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, c)
}

func decodeProps(s string) (protocol.Props, error) {
	var props protocol.Props
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, errors.New("E200").WithDetail(err.Error()).Wrap(err)
	}
	if props == nil {
		props = protocol.Props{}
	}
	return props, nil
}

func decodeOperations(data []byte) ([]protocol.PatchOperation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		trimmed = append(append([]byte(`{"operations":`), trimmed...), '}')
	}
	req, err := protocol.DecodeStreamRequest(bytes.NewReader(trimmed))
	if err != nil {
		return nil, errors.New("E201").WithDetail(err.Error()).Wrap(err)
	}
	return req.Operations, nil
}

// renderFailure maps a client error to a coded CLI error.
func renderFailure(err error) error {
	var re *ipc.RendererError
	if !stderrors.As(err, &re) {
		return err
	}
	var ve *protocol.ValidationError
	switch {
	case ipc.IsUnavailable(err):
		return errors.New("E160").
			WithDetail(re.Message).
			WithSuggestion("Start the render service with 'viewbridge serve'")
	case stderrors.As(err, &ve):
		return errors.New("E181").WithDetail(ve.Error()).Wrap(err)
	default:
		return errors.New("E180").
			WithDetail(fmt.Sprintf("status %d: %s", re.Status, re.Body)).
			Wrap(err)
	}
}

func printDocument(w io.Writer, doc *ipc.RenderedDocument, headers bool) error {
	if headers {
		keys := make([]string, 0, len(doc.Headers))
		for k := range doc.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			info("%s: %s", k, doc.Headers[k])
		}
	}
	_, err := io.WriteString(w, doc.Body)
	if err == nil && len(doc.Body) > 0 && doc.Body[len(doc.Body)-1] != '\n' {
		_, err = io.WriteString(w, "\n")
	}
	return err
}
