package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nobonobo/rigsim/assets"
	"github.com/nobonobo/rigsim/config"
	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/recorder"
	"github.com/nobonobo/rigsim/viewer"
	"github.com/nobonobo/rigsim/window"
)

func init() {
	// GLFW needs the main thread.
	runtime.LockOSThread()
}

type options struct {
	profile string
	v       *viper.Viper
}

func (o *options) load() (protocol.Profile, error) {
	if err := config.ReadFile(o.v, o.profile); err != nil {
		return protocol.Profile{}, err
	}
	return config.Decode(o.v)
}

func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func rootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "rigsim",
		Short:         "Rigid multi-body robot simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.profile, "config", "", "profile file (json or yaml)")
	pf.String("scenario", "", "rover or smarticle")
	pf.String("backend", "", "ode or kinematic")
	pf.Float64("dt", 0, "seconds per step")
	pf.Int64("steps", 0, "stop after this many steps")
	pf.Bool("autopilot", false, "steer the smarticle with the demo program")
	pf.String("scene", "", "COLLADA file bound to bodies by name")
	for key, flag := range map[string]string{
		"scenario":         "scenario",
		"backend":          "backend",
		"driver.dt":        "dt",
		"driver.max_steps": "steps",
		"autopilot":        "autopilot",
		"scene":            "scene",
	} {
		if err := o.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	root.AddCommand(serveCmd(o), runCmd(o))
	return root
}

func serveCmd(o *options) *cobra.Command {
	var (
		addr   string
		static string
		idle   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run in real time and stream frames to browsers",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.load()
			if err != nil {
				return err
			}
			p.Driver.Pace = true
			w, err := NewWorld(p)
			if err != nil {
				return err
			}
			defer w.Close()

			hub := viewer.NewHub(idle)
			if hub.Scene, err = loadScene(p.Scene); err != nil {
				return err
			}
			d, err := w.Driver(p, driver.WithVisualizer(hub))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			l, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{Handler: hub.Handler(static)}
			go func() {
				<-ctx.Done()
				hub.Close()
				srv.Close()
			}()
			done := make(chan struct{})
			go func() {
				defer close(done)
				if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Println("simulation:", err)
				}
				stop()
			}()
			log.Println("listen:", addr)
			err = srv.Serve(l)
			stop()
			<-done
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0:8080", "listen address")
	cmd.Flags().StringVar(&static, "static", "assets", "directory served at /")
	cmd.Flags().DurationVar(&idle, "idle", 5*time.Second, "drop pilots silent for this long")
	return cmd
}

func runCmd(o *options) *cobra.Command {
	var (
		windowed bool
		depth    int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run headless, or in a local window, and record frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.load()
			if err != nil {
				return err
			}
			if p.Driver.MaxSteps == 0 && p.Driver.MaxTime == 0 && !windowed {
				return fmt.Errorf("a headless run needs --steps or driver.max_time")
			}
			w, err := NewWorld(p)
			if err != nil {
				return err
			}
			defer w.Close()

			observe := p.Driver.Observe
			if observe == "" {
				observe = w.Observe
			}
			rec, dir, err := recorder.Open(p.Out, observe, depth)
			if err != nil {
				return err
			}
			log.Println("recording to", dir)
			opts := []driver.Option{driver.WithRecorder(rec)}
			if windowed {
				win, err := window.Open("rigsim: "+p.Scenario, 1024, 768, observe)
				if err != nil {
					rec.Close()
					return err
				}
				defer win.Close()
				opts = append(opts, driver.WithVisualizer(win))
				p.Driver.Pace = true
			}
			d, err := w.Driver(p, opts...)
			if err != nil {
				rec.Close()
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			runErr := d.Run(ctx)
			if err := rec.Close(); err != nil {
				log.Println("recorder:", err)
			}
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		},
	}
	cmd.Flags().String("out", "", "recorder root directory")
	bind(o.v, cmd, "out", "out")
	cmd.Flags().BoolVar(&windowed, "window", false, "render in a local window")
	cmd.Flags().IntVar(&depth, "queue", 64, "frames buffered for the recorder")
	return cmd
}

func loadScene(path string) (*assets.Model, error) {
	if path == "" {
		return nil, nil
	}
	return assets.LoadScene(path)
}

func main() {
	o := &options{}
	env := ".env"
	if e := os.Getenv("RIGSIM_ENV_FILE"); e != "" {
		env = e
	}
	v, err := config.New(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	o.v = v
	if err := rootCmd(o).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
