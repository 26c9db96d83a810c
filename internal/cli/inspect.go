package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kayblog/internal/cache"
	"kayblog/internal/songs"
)

func namespaceOf(arg string) (string, error) {
	switch arg {
	case "video", cache.NamespaceVideo:
		return cache.NamespaceVideo, nil
	case cache.NamespaceMusic:
		return cache.NamespaceMusic, nil
	}
	return "", fmt.Errorf("unknown cache namespace %q (video|music)", arg)
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "查看富化缓存",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls <video|music>",
		Short: "列出缓存条目",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceOf(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			store, closeFn, err := cache.Open(cmd.Context(), cfg.Cache, ns)
			if err != nil {
				return err
			}
			defer closeFn()
			lister, ok := store.(cache.Lister)
			if !ok {
				return errors.New("cache backend does not support listing")
			}
			keys, err := lister.Keys(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(keys))
			for i, k := range keys {
				size := "-"
				if b, ok, err := store.Get(cmd.Context(), k); err == nil && ok {
					size = humanize.Bytes(uint64(len(b)))
				}
				rows = append(rows, []string{strconv.Itoa(i + 1), k, size})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "KEY", "SIZE"}, rows, 0, 2))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <video|music> <key>",
		Short: "输出单个缓存条目",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := namespaceOf(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			store, closeFn, err := cache.Open(cmd.Context(), cfg.Cache, ns)
			if err != nil {
				return err
			}
			defer closeFn()
			b, ok, err := store.Get(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cache miss: %s", args[1])
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, b, "", "  "); err != nil {
				buf.Reset()
				buf.Write(b)
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	})
	return cmd
}

func newSongsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "songs",
		Short: "列出歌单及播放地址",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			list, err := songs.Load(cfg.SongsFile)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				stream := songs.StreamURL(s)
				if stream == "" {
					stream = "不支持"
				}
				rows = append(rows, []string{s.Name, s.Artist, s.Source, s.DurationLabel, stream})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"歌曲", "艺术家", "来源", "时长", "播放地址"}, rows, 3))
			return nil
		},
	}
}
