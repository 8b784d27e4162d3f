package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kestrel-os/kestrel/pkg/config"
	"github.com/kestrel-os/kestrel/pkg/loader"
	"github.com/kestrel-os/kestrel/pkg/thread"
	"github.com/kestrel-os/kestrel/pkg/vfs"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var heartbeat time.Duration

	cmd := &cobra.Command{
		Use:   "run <program> [args...]",
		Short: "Boot the machine and run one program",
		Long: `Boot the machine, run the program as a child of the boot thread with the
remaining arguments as its argv, and wait for it. A nonzero exit code
becomes the exit status of kestrel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := programPath(args[0])
			if err != nil {
				return err
			}
			m, ctx, err := c.newMachine(cmd.Context(), heartbeat)
			if err != nil {
				return err
			}

			code, err := m.sys.RunProgram(ctx, p, args)
			m.halted(ctx, err)
			if err != nil {
				return err
			}
			m.notifier.NotifyProgramExit(p, code)
			if code != 0 {
				return &ExitError{Program: p, Code: code}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "log kernel counters at this interval")
	return cmd
}

func (c *CLI) newBootCmd() *cobra.Command {
	var heartbeat time.Duration
	var snapshot bool

	cmd := &cobra.Command{
		Use:   "boot [programs...]",
		Short: "Boot the machine and run programs side by side",
		Long: `Boot the machine and start every named program, or every program in the
program directory, as concurrent children of the boot thread. Prints each
exit code and the kernel's counters once all of them have been waited for.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ctx, err := c.newMachine(cmd.Context(), heartbeat)
			if err != nil {
				return err
			}

			paths := make([]string, 0, len(args))
			for _, a := range args {
				p, err := programPath(a)
				if err != nil {
					return err
				}
				paths = append(paths, p)
			}
			if len(paths) == 0 {
				if paths, err = listPrograms(m.cfg.ProgramDir); err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				c.printWarning("no programs in %s", m.cfg.ProgramDir)
				return nil
			}

			codes, err := m.sys.RunPrograms(ctx, paths)
			m.halted(ctx, err)
			c.printReport(paths, codes, m.sys.Kernel(), snapshot)
			return err
		},
	}
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 0, "log kernel counters at this interval")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "also print the thread table at halt")
	return cmd
}

func (c *CLI) printReport(paths []string, codes map[string]int, k *thread.Kernel, snapshot bool) {
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROGRAM\tEXIT")
	for _, p := range paths {
		code, ok := codes[p]
		status := "-"
		if ok {
			status = fmt.Sprint(code)
		}
		fmt.Fprintf(w, "%s\t%s\n", p, status)
	}
	w.Flush()

	st := k.Stats()
	c.printInfo("forks=%d exits=%d reaped=%d switches=%d sleeps=%d wakeups=%d interrupts=%d",
		st.Forks, st.Exits, st.Reaped, st.Switches, st.Sleeps, st.Wakeups, st.Interrupts)

	if !snapshot {
		return
	}
	w = tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tPPID\tSTATE\tNAME\tWAITING ON")
	for _, ti := range k.Snapshot() {
		tok := ""
		if !ti.Token.IsZero() {
			tok = ti.Token.String()
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", ti.Pid, ti.Ppid, ti.State, ti.Name, tok)
	}
	w.Flush()
}

func (c *CLI) newProgramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "programs",
		Short: "List the programs in the program directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.kernelConfig()
			if err != nil {
				return err
			}
			fs, err := vfs.NewDirFS(cfg.ProgramDir)
			if err != nil {
				return err
			}
			paths, err := fs.List(loader.Extension)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tNAME\tTEXT\tDATA\tSTATUS")
			for _, p := range paths {
				img, err := openImage(fs, p)
				if err != nil {
					fmt.Fprintf(w, "%s\t\t\t\t%v\n", p, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\tok\n", p, img.Name, len(img.Text), img.DataSize)
			}
			return w.Flush()
		},
	}
}

func openImage(fs vfs.FS, p string) (*loader.Image, error) {
	vn, err := fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer vfs.Close(vn)
	return loader.Parse(vn.Data())
}

func listPrograms(dir string) ([]string, error) {
	fs, err := vfs.NewDirFS(dir)
	if err != nil {
		return nil, err
	}
	paths, err := fs.List(loader.Extension)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *CLI) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage machine configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := DefaultConfigNames[0]
			if len(args) == 1 {
				p = args[0]
			}
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			}
			mgr := config.NewManager()
			if err := mgr.SaveConfig(p, mgr.GetDefaultConfig()); err != nil {
				return err
			}
			c.printSuccess("wrote %s", p)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate [file]",
			Short: "Check a configuration file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p := c.configPath()
				if len(args) == 1 {
					p = args[0]
				}
				if p == "" {
					return errors.New("no configuration file found")
				}
				if _, err := config.NewManager().LoadConfig(p); err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				c.printSuccess("%s is valid", p)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := c.kernelConfig()
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(c.output)
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return err
				}
				return enc.Close()
			},
		},
		initCmd,
	)
	return cmd
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "kestrel v%s\n", c.config.Version)
		},
	}
}
