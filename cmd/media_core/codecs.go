package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// codecRow - строка вывода списка кодеков
type codecRow struct {
	PayloadType int      `json:"payload_type" yaml:"payload_type"`
	RTPMap      string   `json:"rtpmap" yaml:"rtpmap"`
	Description string   `json:"description" yaml:"description"`
	Implemented bool     `json:"implemented" yaml:"implemented"`
	Attributes  []string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func codecRows(registry *codec.Registry, kind codec.MediaKind) []codecRow {
	implemented := make(map[codec.Descriptor]bool)
	for _, d := range registry.Supported(kind) {
		implemented[d] = true
	}

	descriptors := registry.CodecsFor(kind)
	rows := make([]codecRow, 0, len(descriptors))
	for _, d := range descriptors {
		rows = append(rows, codecRow{
			PayloadType: d.PayloadType,
			RTPMap:      d.MapString(),
			Description: d.Description,
			Implemented: implemented[d],
			Attributes:  registry.AttributesFor(d),
		})
	}
	return rows
}

func newCodecsCmd() *cobra.Command {
	var (
		kindName string
		format   string
		offer    bool
	)
	cmd := &cobra.Command{
		Use:   "codecs",
		Short: "List registered codecs or print an SDP offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			kind, err := codec.ParseMediaKind(kindName)
			if err != nil {
				return err
			}
			registry, err := codec.NewRegistry(cfg.Codec)
			if err != nil {
				return err
			}
			if offer {
				return printOffer(cmd.Context(), cmd.OutOrStdout(), registry, kind, cfg)
			}
			return printCodecs(cmd.OutOrStdout(), codecRows(registry, kind), format)
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", "audio", "media kind: audio or video")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table or yaml")
	cmd.Flags().BoolVar(&offer, "offer", false, "print an SDP offer with every implemented codec")
	return cmd
}

func printCodecs(w io.Writer, rows []codecRow, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RTPMAP\tIMPLEMENTED\tDESCRIPTION")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%t\t%s\n", r.RTPMap, r.Implemented, r.Description)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("неизвестный формат вывода: %q", format)
	}
}

// printOffer печатает SDP offer, который сессия получила бы при создании.
// Порт в m= строке условный: пул портов не используется.
func printOffer(ctx context.Context, w io.Writer, registry *codec.Registry, kind codec.MediaKind, cfg appConfig) error {
	config := media_sdp.DefaultConfig(kind)
	config.Port = cfg.Pool.Range.Base
	config.Address = cfg.Manager.LocalIP
	if kind == codec.MediaAudio {
		config.Ptime = cfg.Manager.Ptime
	}

	negotiator, err := media_sdp.NewNegotiator(registry, config)
	if err != nil {
		return err
	}
	md, err := negotiator.Offer(ctx)
	if err != nil {
		return err
	}
	desc, err := media_sdp.NewSessionDescription(media_sdp.SessionParams{Address: cfg.Manager.LocalIP}, md)
	if err != nil {
		return err
	}
	raw, err := media_sdp.MarshalSessionDescription(desc)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}
