package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"qpimage/internal/logging"
	"qpimage/internal/models"
	"qpimage/pkg/config"
	"qpimage/pkg/hdf5io"
	"qpimage/pkg/imagedata"
	"qpimage/pkg/qpimage"
	"qpimage/pkg/store"
	"qpimage/pkg/visualization"
)

// app carries the state shared by all subcommands of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	backend    string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// usageArgs wraps a cobra argument validator so that its failures map to
// CLIExitUsage.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "qpimage",
		Short: "Manage quantitative phase image stores",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	root.PersistentFlags().StringVar(&a.configPath, "config", "qpimage.yaml", "Configuration file")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "Store backend (sqlite or badger), overrides the configuration")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides the configuration")

	root.AddCommand(
		a.infoCmd(),
		a.copyCmd(),
		a.clearBgCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.createCmd(),
		a.refocusCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return &usageError{err: err}
	}
	logger, err := logging.New(a.stderr, level, logging.Format(cfg.Logging.Format))
	if err != nil {
		return &usageError{err: err}
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// storeConfig returns the store configuration for path with the given mode.
func (a *app) storeConfig(path string, mode store.Mode) (store.Config, error) {
	sc, err := a.cfg.StoreConfig(path)
	if err != nil {
		return store.Config{}, err
	}
	sc.Mode = mode
	sc.Logger = a.logger
	return sc, nil
}

// imageOptions returns the options every image of the invocation shares.
func (a *app) imageOptions() []qpimage.Option {
	return []qpimage.Option{
		qpimage.WithLogger(a.logger),
		qpimage.WithMediumIndex(a.cfg.Refocus.MediumIndex),
		qpimage.WithRefocusMethod(a.cfg.Refocus.Method),
	}
}

// open opens the image stored at path.
func (a *app) open(path string, mode store.Mode) (*qpimage.QPImage, error) {
	sc, err := a.storeConfig(path, mode)
	if err != nil {
		return nil, err
	}
	return qpimage.New(append(a.imageOptions(), qpimage.WithStore(sc))...)
}

// destMode is the mode used for stores a command writes to.
func (a *app) destMode() store.Mode {
	mode, err := store.ParseMode(a.cfg.Store.Mode)
	if err != nil || mode == store.ModeRead {
		return store.ModeCreate
	}
	return mode
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <store>",
		Short: "Show shape, metadata and background components of an image",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.open(args[0], store.ModeRead)
			if err != nil {
				return err
			}
			defer q.Close()
			return a.printInfo(q)
		},
	}
}

func (a *app) printInfo(q *qpimage.QPImage) error {
	w := a.stdout
	fmt.Fprintln(w, q.String())

	meta, err := q.Meta()
	if err != nil {
		return err
	}
	for _, k := range meta.Keys() {
		fmt.Fprintf(w, "  %-12s %g\n", k, meta[k])
	}

	fields := []struct {
		name  string
		field *imagedata.Field
		image func() (*mat.Dense, error)
	}{
		{"amplitude", q.Amplitude(), q.Amp},
		{"phase", q.Phase(), q.Pha},
	}
	for _, f := range fields {
		keys, err := f.field.Components()
		if err != nil {
			return err
		}
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = string(k)
		}
		if len(names) == 0 {
			names = []string{"none"}
		}
		fmt.Fprintf(w, "%s background: %s\n", f.name, strings.Join(names, ", "))

		img, err := f.image()
		if err != nil {
			return err
		}
		mean, std := stat.MeanStdDev(img.RawMatrix().Data, nil)
		fmt.Fprintf(w, "%s mean: %.6g std: %.6g\n", f.name, mean, std)
	}
	return nil
}

func (a *app) copyCmd() *cobra.Command {
	var dstBackend string
	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy an image store, optionally to another backend",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := a.storeConfig(args[0], store.ModeRead)
			if err != nil {
				return err
			}
			out, err := a.storeConfig(args[1], a.destMode())
			if err != nil {
				return err
			}
			if dstBackend != "" {
				if out.Backend, err = store.ParseBackend(dstBackend); err != nil {
					return &usageError{err: err}
				}
			}
			if err := qpimage.CopyFile(in, out); err != nil {
				return err
			}
			a.logger.Info("copied image store", "src", args[0], "dst", args[1], "backend", out.Backend)
			return nil
		},
	}
	cmd.Flags().StringVar(&dstBackend, "dst-backend", "", "Backend of the destination store (default: --backend)")
	return cmd
}

func (a *app) clearBgCmd() *cobra.Command {
	var fields, keys []string
	cmd := &cobra.Command{
		Use:   "clear-bg <store>",
		Short: "Remove background components from an image",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			names, err := qpimage.ParseFieldNames(strings.Join(fields, ","))
			if err != nil {
				return err
			}
			bgKeys := make([]imagedata.Key, 0, len(keys))
			for _, k := range keys {
				key, err := imagedata.ParseKey(strings.TrimSpace(k))
				if err != nil {
					return err
				}
				bgKeys = append(bgKeys, key)
			}

			q, err := a.open(args[0], store.ModeReadWrite)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := q.Close(); err == nil {
					err = cerr
				}
			}()
			return q.ClearBg(names, bgKeys)
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", []string{"amplitude", "phase"}, "Fields to clear")
	cmd.Flags().StringSliceVar(&keys, "keys", []string{"ramp"}, "Background keys to clear (data, ramp, fit)")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var what string
	cmd := &cobra.Command{
		Use:   "export <store> <out.png|out.jpg>",
		Short: "Render an image field to a grayscale PNG or JPEG",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.open(args[0], store.ModeRead)
			if err != nil {
				return err
			}
			defer q.Close()

			var read func() (*mat.Dense, error)
			switch what {
			case "amp":
				read = q.Amp
			case "pha":
				read = q.Pha
			case "bg_amp":
				read = q.BgAmp
			case "bg_pha":
				read = q.BgPha
			default:
				return &usageError{err: fmt.Errorf("invalid --what %q (must be amp, pha, bg_amp or bg_pha)", what)}
			}
			data, err := read()
			if err != nil {
				return err
			}
			if err := visualization.SaveImage(visualization.Render(data), args[1]); err != nil {
				return err
			}
			a.logger.Info("exported image", "what", what, "out", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&what, "what", "pha", "Array to export (amp, pha, bg_amp, bg_pha)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <in.h5> <store>",
		Short: "Import an HDF5 image file into a store",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			sc, err := a.storeConfig(args[1], a.destMode())
			if err != nil {
				return err
			}
			st, err := store.Open(sc)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := st.Close(); err == nil {
					err = cerr
				}
			}()
			sum, err := hdf5io.Import(args[0], st, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "imported %d datasets\n", len(sum.Datasets))
			return nil
		},
	}
}

// readInput reads the decoder input and metadata of an HDF5 input file.
func (a *app) readInput(path string) (qpimage.Data, models.Meta, error) {
	in, err := hdf5io.ReadInput(path, a.logger)
	if err != nil {
		return qpimage.Data{}, nil, err
	}
	data, err := in.Data()
	if err != nil {
		return qpimage.Data{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, in.Meta, nil
}

func (a *app) createCmd() *cobra.Command {
	var encoding, bgPath string
	cmd := &cobra.Command{
		Use:   "create <in.h5> <store>",
		Short: "Create an image from the root datasets of an HDF5 file",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			enc, err := qpimage.ParseEncoding(encoding)
			if err != nil {
				return err
			}
			data, meta, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			sc, err := a.storeConfig(args[1], a.destMode())
			if err != nil {
				return err
			}
			opts := append(a.imageOptions(),
				qpimage.WithStore(sc),
				qpimage.WithData(data, enc),
			)
			if bgPath != "" {
				bg, _, err := a.readInput(bgPath)
				if err != nil {
					return err
				}
				opts = append(opts, qpimage.WithBackground(bg))
			}
			for _, k := range meta.Keys() {
				opts = append(opts, qpimage.WithMeta(k, meta[k]))
			}

			q, err := qpimage.New(opts...)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := q.Close(); err == nil {
					err = cerr
				}
			}()
			fmt.Fprintln(a.stdout, q.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&encoding, "encoding", string(qpimage.EncodingPhase),
		"Encoding of the input (field, phase, phase,amplitude, phase,intensity)")
	cmd.Flags().StringVar(&bgPath, "bg", "", "HDF5 file with background data in the same encoding")
	return cmd
}

func (a *app) refocusCmd() *cobra.Command {
	var distance float64
	var method string
	cmd := &cobra.Command{
		Use:   "refocus <src> <dst>",
		Short: "Numerically refocus an image and store the result",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.open(args[0], store.ModeRead)
			if err != nil {
				return err
			}
			defer q.Close()

			r, err := q.Refocus(distance, method)
			if err != nil {
				return err
			}
			defer r.Close()

			sc, err := a.storeConfig(args[1], a.destMode())
			if err != nil {
				return err
			}
			out, err := r.Copy(sc)
			if err != nil {
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			a.logger.Info("refocused image", "src", args[0], "dst", args[1], "distance", distance)
			return nil
		},
	}
	cmd.Flags().Float64Var(&distance, "distance", 0, "Propagation distance in meters")
	cmd.Flags().StringVar(&method, "method", "", "Propagation method, helmholtz or fresnel (default: configuration)")
	return cmd
}
