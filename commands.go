package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"asncountry/internal/compress"
	"asncountry/internal/config"
	"asncountry/internal/fetch"
	"asncountry/internal/mrt"
	"asncountry/internal/pipeline"
	"asncountry/internal/rib"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func registerBuildCommand(g *globalFlags) *cobra.Command {
	var date, workDir, outputDir string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "fetch registry feeds and a routing snapshot, then write the country tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if date != "" {
				cfg.Date = date
			}
			if workDir != "" {
				cfg.WorkDir = workDir
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			f := fetch.NewHTTPFetcher(cfg.Fetch.Timeout, uint64(max(cfg.Fetch.Retries, 0)))
			dec := mrt.ExecDecoder{Command: cfg.Decoder.Command, Args: cfg.Decoder.Args}
			_, err = pipeline.Build(ctx, cfg, f, dec, time.Now())
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYYMMDD (default latest)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "download cache directory")
	cmd.Flags().StringVarP(&outputDir, "out", "o", "", "output directory")
	return cmd
}

func registerTransformCommand(g *globalFlags) *cobra.Command {
	var (
		delegated []string
		ribText   string
		outputDir string
		format    string
		v6Length  bool
		aspathCol int
		prefixCol int
	)
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "write the country tables from local delegation files and decoded RIB text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(g); err != nil {
				return err
			}
			if len(delegated) == 0 || ribText == "" {
				return fmt.Errorf("--delegated and --rib-text are required")
			}
			c, err := compress.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			_, err = pipeline.Run(ctx, pipeline.Options{
				Delegations:            delegated,
				RIBText:                ribText,
				Layout:                 rib.Layout{ASPath: aspathCol, Prefix: prefixCol},
				OutputDir:              outputDir,
				IPv6SizeIsPrefixLength: v6Length,
				Compress:               c,
			})
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&delegated, "delegated", "d", nil, "registry delegation file, in precedence order (repeatable)")
	cmd.Flags().StringVarP(&ribText, "rib-text", "r", "", "decoded TABLE_DUMP2 text")
	cmd.Flags().StringVarP(&outputDir, "out", "o", config.DefaultOutputDir, "output directory")
	cmd.Flags().StringVar(&format, "compress", "", "compress outputs: gzip or zstd")
	cmd.Flags().BoolVar(&v6Length, "ipv6-size-is-prefix-length", false, "read the ipv6 size column as a prefix length")
	cmd.Flags().IntVar(&aspathCol, "aspath-field", rib.DefaultLayout.ASPath, "column of the AS path")
	cmd.Flags().IntVar(&prefixCol, "prefix-field", rib.DefaultLayout.Prefix, "column of the prefix")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(doc))
	return err
}

func registerLookupCommand(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "lookup <asn|ip>...",
		Short: "resolve ASNs or addresses against built tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(g); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range args {
				asn, ip, err := parseQuery(q)
				if err != nil {
					return fmt.Errorf("%s: %w", q, err)
				}
				var res any
				if ip != nil {
					res, err = lookupIP(dir, ip)
				} else {
					res, err = lookupASN(dir, asn)
				}
				if err != nil {
					return err
				}
				if err := printJSON(out, res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", config.DefaultOutputDir, "directory holding the built tables")
	return cmd
}

func writeSummary(w io.Writer, rows []CountrySummary, pretty bool) {
	if !pretty {
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", r.Country, r.ASNs, r.Delegated, r.Announced, r.Name)
		}
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"CC", "NAME", "ASNS", "DELEGATED", "ANNOUNCED"})
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, r := range rows {
		table.Append([]string{r.Country, r.Name, strconv.Itoa(r.ASNs), strconv.Itoa(r.Delegated), strconv.Itoa(r.Announced)})
	}
	table.Render()
}

func registerSummaryCommand(g *globalFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "count table rows per country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(g); err != nil {
				return err
			}
			rows, err := summarize(dir)
			if err != nil {
				return err
			}
			writeSummary(cmd.OutOrStdout(), rows, isatty.IsTerminal(os.Stdout.Fd()))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", config.DefaultOutputDir, "directory holding the built tables")
	return cmd
}
