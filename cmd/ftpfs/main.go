// Command ftpfs mounts a remote FTP server as a local FUSE filesystem,
// wiring internal/config, internal/ftpwire, internal/vfsio and
// internal/fusefs together the way the teacher's cmd/cmd.go wires a
// backend and a mount library: parse flags into an Options struct,
// dial the backend, hand it to the host-binding layer, run until
// interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rclone/ftpfs/internal/config"
	"github.com/rclone/ftpfs/internal/fusefs"
	"github.com/rclone/ftpfs/internal/ftpwire"
	"github.com/rclone/ftpfs/internal/vfsio"
)

var log = logrus.WithField("pkg", "main")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	opt := config.DefaultOptions()
	var allowReadWrite bool

	cmd := &cobra.Command{
		Use:   "ftpfs <mountpoint>",
		Short: "Mount a remote FTP server as a local FUSE filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args[0], allowReadWrite)
		},
	}

	flags := cmd.Flags()
	config.BindFlags(flags, opt)
	flags.BoolVar(&allowReadWrite, "allow-read-write", false, "allow O_RDWR opens (unsupported by default, spec-level open question)")

	return cmd
}

func run(opt *config.Options, mountpoint string, allowReadWrite bool) error {
	if opt.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := opt.Validate(); err != nil {
		return err
	}

	sharedClient, err := ftpwire.Dial(opt)
	if err != nil {
		return err
	}
	defer sharedClient.Close()

	dial := func() (*ftpwire.Client, error) {
		return ftpwire.Dial(opt)
	}

	shared := vfsio.NewSharedConn(sharedClient)
	root := fusefs.NewRoot(opt, shared, dial, allowReadWrite)

	server, err := fs.Mount(mountpoint, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     "ftpfs",
			Name:       "ftpfs",
			AllowOther: false,
		},
	})
	if err != nil {
		return err
	}
	log.WithField("mountpoint", mountpoint).Info("mounted")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("signal received, unmounting")
			return server.Unmount()
		case <-ctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		server.Wait()
		cancel()
		return nil
	})

	return g.Wait()
}
