// Package cli provides the command-line interface for Kestrel
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrel-os/kestrel/pkg/logger"
)

// CLI holds the command tree and everything it writes to.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	viper    *viper.Viper
	logger   logger.Logger
	output   io.Writer
	errorOut io.Writer
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(config *Config) *CLI {
	if config == nil {
		config = NewConfig()
	}

	cli := &CLI{
		config:   config,
		viper:    viper.New(),
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(config *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(config)
	cli.output = output
	cli.errorOut = errorOut
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	return c.ExecuteContext(context.Background(), args)
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "kestrel",
		Short: "A simulated uniprocessor for kernel thread and process labs",
		Long: `Kestrel boots a small simulated machine: kernel threads, semaphores,
locks and condition variables, and user processes that fork, exec,
wait and exit. User programs are YAML images in the program directory.`,

		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initializeConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("kestrel v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newBootCmd())
	c.rootCmd.AddCommand(c.newProgramsCmd())
	c.rootCmd.AddCommand(c.newConfigCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	flags.StringVar(&c.config.ConfigFile, "config", "", "config file (default: kestrel.config.json)")
	flags.StringVar(&c.config.ProgramDir, "programs", "", "program directory (default: programs)")
	flags.StringVarP(&c.config.Verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	flags.Int("max-threads", 0, "thread ceiling")
	flags.Int("stack-size", 0, "kernel stack size in bytes")
	flags.Int("heap-limit", 0, "kernel heap size in bytes")
	flags.String("scheduler", "", "run queue policy (fifo, random)")
	flags.Int64("seed", 0, "seed for the random scheduler")
	flags.Int("quantum", 0, "timer interval in milliseconds, 0 disables preemption")
	flags.Int("idle-timeout", 0, "idle time in milliseconds before a deadlock is declared")

	_ = c.viper.BindPFlags(flags)
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.viper.SetEnvPrefix("KESTREL")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.viper.AutomaticEnv()

	c.logger = logger.CreateLoggerWithOutput(c.viper.GetString("verbosity"), c.errorOut)
	if p := c.configPath(); p != "" {
		c.logger.Debug("using config file", logger.WithField("file", p))
	}
	return nil
}

// Helper methods for structured output

func (c *CLI) printSuccess(format string, args ...interface{}) {
	fmt.Fprintf(c.output, "%s %s\n", color.GreenString("[kestrel]"), fmt.Sprintf(format, args...))
}

func (c *CLI) printInfo(format string, args ...interface{}) {
	fmt.Fprintf(c.output, "%s %s\n", color.CyanString("[kestrel]"), fmt.Sprintf(format, args...))
}

func (c *CLI) printWarning(format string, args ...interface{}) {
	fmt.Fprintf(c.errorOut, "%s %s\n", color.YellowString("[kestrel]"), fmt.Sprintf(format, args...))
}

// PrintError writes a failure the way the CLI reports everything else.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.RedString("[kestrel]"), err)
}
