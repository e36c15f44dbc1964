package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hilcomm/adb"
	"hilcomm/cmd"
	"hilcomm/config"
	"hilcomm/device"
	"hilcomm/log"
)

var (
	version     = "0.3.0"
	configFlag  string
	timeoutFlag time.Duration
	quietFlag   bool

	rootCmd = &cobra.Command{
		Use:   "hilcomm",
		Short: "hilcomm - drive automotive head units over serial, adb, fastboot and ssh.",
		RunE: func(c *cobra.Command, args []string) error {
			return c.Help()
		},
	}

	execCmd = &cobra.Command{
		Use:   "exec -- <command>",
		Short: "Run a shell command on the device over adb",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			log.Initialize(quietFlag)
			defer log.Close()

			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			id, err := cfg.ADBDeviceID()
			if err != nil {
				return err
			}

			out, err := adb.New(id).Shell(strings.Join(args, " "), adb.RunOptions{
				Timeout: timeoutFlag,
			})
			if out != "" {
				fmt.Print(out)
			}
			var failed *cmd.CommandFailedError
			if errors.As(err, &failed) {
				fmt.Print(failed.Output)
				os.Exit(failed.ExitCode)
			}
			return err
		},
	}

	consoleCmd = &cobra.Command{
		Use:   "console <role>",
		Short: "Attach interactively to a serial console (detach with Ctrl-])",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()

			factory, err := device.NewFactory(configFlag)
			if err != nil {
				return err
			}
			session, err := factory.CreateSerial(config.SerialRole(args[0]))
			if err != nil {
				return err
			}
			defer session.Close()

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("stdin is not a terminal")
			}
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("failed to enter raw mode: %w", err)
			}
			defer func() { _ = term.Restore(fd, oldState) }()

			fmt.Printf("attached to %s, detach with Ctrl-]\r\n", session.Name())
			return session.Attach(os.Stdin, os.Stdout)
		},
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "Show the resolved device configuration and attached adb devices",
		RunE: func(c *cobra.Command, args []string) error {
			log.Initialize(true)
			defer log.Close()

			cfg, err := config.Load(configFlag)
			if err != nil {
				return err
			}

			name, _ := cfg.DeviceName()
			fmt.Printf("config:  %s\n", cfg.Path())
			fmt.Printf("device:  %s\n", name)
			if id, err := cfg.ADBDeviceID(); err == nil {
				fmt.Printf("adb id:  %s\n", id)
			}
			for _, role := range cfg.AvailableSerialRoles() {
				tty, _ := cfg.SerialDevicePath(role)
				fmt.Printf("serial:  %-11s %s\n", role, tty)
			}
			if ip, err := cfg.QNXIP(); err == nil {
				fmt.Printf("qnx ssh: %s:%s\n", ip, cfg.QNXPort())
			}
			if extras, err := cfg.ExtraDevices(); err == nil && len(extras) > 0 {
				for _, d := range extras {
					fmt.Printf("extra:   %s (%s, %s)\n", d.ADBDeviceID, d.ProductName, d.Type)
				}
			}

			ids, err := adb.New("").ListDevices()
			if err != nil {
				log.WarningLog.Printf("failed to list adb devices: %v", err)
				return nil
			}
			fmt.Printf("attached adb devices: %s\n", strings.Join(ids, ", "))
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hilcomm",
		Run: func(c *cobra.Command, args []string) {
			fmt.Printf("hilcomm version %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"Path to the device configuration file (default: discovery via "+config.ConfigEnvVar+", CWD, HOME)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false,
		"Do not mirror warnings and errors to stderr")
	execCmd.Flags().DurationVarP(&timeoutFlag, "timeout", "t", 30*time.Second,
		"Timeout for the command")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
