// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command btrfs-volmgr inspects the multi-device volume layer of a
// btrfs filesystem: the devices it is built from, the chunks bound
// across them, and the logical-to-physical mapping those chunks form.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsutil"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
	"git.lukeshu.com/btrfs-progs-ng/lib/textui"
)

type logLevelFlag struct {
	logrus.Level
}

func (lvl *logLevelFlag) Type() string { return "loglevel" }
func (lvl *logLevelFlag) Set(str string) error {
	var err error
	lvl.Level, err = logrus.ParseLevel(str)
	return err
}

var _ pflag.Value = (*logLevelFlag)(nil)

func main() {
	logLvl := logLevelFlag{Level: logrus.InfoLevel}
	var pvsFlag []string

	argparser := &cobra.Command{
		Use:   "btrfs-volmgr {[flags]|SUBCOMMAND}",
		Short: "Inspect the multi-device volume manager of a btrfs filesystem",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true,
		SilenceUsage:  true,

		CompletionOptions: cobra.CompletionOptions{ //nolint:exhaustivestruct
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLvl, "verbosity", "set the verbosity")
	argparser.PersistentFlags().StringArrayVar(&pvsFlag, "pv", nil, "open the file `physical_volume` as part of the filesystem")
	if err := argparser.MarkPersistentFlagFilename("pv"); err != nil {
		panic(err)
	}
	if err := argparser.MarkPersistentFlagRequired("pv"); err != nil {
		panic(err)
	}

	withCtx := func(runE func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			logger.SetLevel(logLvl.Level)
			ctx := dlog.WithLogger(cmd.Context(), dlog.WrapLogrus(logger))

			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) error {
				return runE(ctx, cmd, args)
			})
			return grp.Wait()
		}
	}

	argparser.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Scan the given physical volumes and report the filesystem(s) found",
		Args:  cobra.NoArgs,
		RunE: withCtx(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			reg := btrfsvolmgr.NewRegistry()
			for _, pv := range pvsFlag {
				fsd, numDevices, err := reg.ScanOneDevice(ctx, pv, 0x10000)
				if err != nil {
					dlog.Errorf(ctx, "skipping %q: %v", pv, err)
					continue
				}
				textui.Fprintf(os.Stdout, "%s: fsid=%v devid=%v (of %d devices)\n", pv, fsd.FSID, fsd.LatestDevID, numDevices)
			}
			return nil
		}),
	})

	var logicalFlag string
	mapBlockCmd := &cobra.Command{
		Use:   "map-block --logical=ADDR",
		Short: "Translate a logical address into a (device, physical offset, length)",
		Args:  cobra.NoArgs,
		RunE: withCtx(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			logical, err := strconv.ParseUint(logicalFlag, 0, 64)
			if err != nil {
				return fmt.Errorf("--logical: %w", err)
			}

			fs, err := btrfsutil.Open(ctx, os.O_RDONLY, pvsFlag...)
			if err != nil {
				return err
			}
			defer fs.Close()

			sb, err := fs.Superblock()
			if err != nil {
				return err
			}

			fsd, err := btrfsvolmgr.NewRegistry().DeviceListAdd(pvsFlag[0], sb, sb.DevItem.DevID)
			if err != nil {
				return err
			}

			idx := btrfsvolmgr.NewMappingIndex()
			if err := btrfsvolmgr.ReadSysArray(*sb, idx); err != nil {
				return err
			}
			if err := btrfsvolmgr.ReadChunkTree(ctx, fs, fsd, idx); err != nil {
				return err
			}

			resolved, err := idx.MapBlock(btrfsvol.LogicalAddr(logical))
			if err != nil {
				return err
			}
			textui.Fprintf(os.Stdout, "logical=0x%x -> devid=%v physical=%v length=0x%x\n",
				logical, resolved.Dev, resolved.Physical, resolved.Length)
			return nil
		}),
	}
	mapBlockCmd.Flags().StringVar(&logicalFlag, "logical", "", "logical `address` to translate")
	if err := mapBlockCmd.MarkFlagRequired("logical"); err != nil {
		panic(err)
	}
	argparser.AddCommand(mapBlockCmd)

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
