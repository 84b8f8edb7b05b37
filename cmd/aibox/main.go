package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ixlab/aibox/config"
	"github.com/ixlab/aibox/internal/server"
)

func main() {
	var cfgPath string
	root := &cobra.Command{Use: "aibox", Short: "Multi-provider chat, vision and image generation service"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (optional, env vars override)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return server.Run(cfg)
		},
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the server in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if pid, running := readPid(cfg.Server.PidFile); running {
				return fmt.Errorf("already running (pid %d)", pid)
			}
			return startDaemon(cfg, cfgPath)
		},
	}

	stop := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return stopDaemon(cfg)
		},
	}

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Restart the background server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := stopDaemon(cfg); err != nil {
				log.Printf("stop: %v", err)
			}
			return startDaemon(cfg, cfgPath)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether the server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			pid, running := readPid(cfg.Server.PidFile)
			if !running {
				fmt.Println("stopped")
				return nil
			}
			fmt.Printf("running (pid %d)", pid)
			if portOpen(cfg.Server.Addr()) {
				fmt.Printf(", listening on %s", cfg.Server.Addr())
			} else {
				fmt.Print(", port not answering")
			}
			fmt.Println()
			return nil
		},
	}

	root.AddCommand(serve, start, stop, restart, status)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// startDaemon re-executes the binary with `serve` detached and records the
// pid.
func startDaemon(cfg *config.Config, cfgPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{"serve"}
	if cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Server.PidFile, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return err
	}
	// Give the listener a moment, then confirm the port answers.
	for i := 0; i < 20; i++ {
		if portOpen(cfg.Server.Addr()) {
			fmt.Printf("started (pid %d) on %s\n", cmd.Process.Pid, cfg.Server.Addr())
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	fmt.Printf("started (pid %d) but %s is not answering yet\n", cmd.Process.Pid, cfg.Server.Addr())
	return nil
}

func stopDaemon(cfg *config.Config) error {
	pid, running := readPid(cfg.Server.PidFile)
	if !running {
		return fmt.Errorf("not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return err
	}
	_ = os.Remove(cfg.Server.PidFile)
	fmt.Printf("stopped (pid %d)\n", pid)
	return nil
}

// readPid returns the recorded pid and whether that process is alive.
func readPid(pidFile string) (int, bool) {
	raw, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return pid, false
	}
	return pid, true
}

func portOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
