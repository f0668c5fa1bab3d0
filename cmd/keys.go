package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxpro/core/voxpro"
	"voxpro/core/voxpro/remote"
	"voxpro/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	keysServer string
	keysWatch  bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "查看各键位当前分配",
	Long:  `通过远程接口读取运行中服务器的键位分配，每个键位一行；--watch 时订阅变更并持续刷新。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := keysServer
		if server == "" {
			server = cfg.PublicBaseURL
		}
		if server == "" {
			server = "http://localhost" + cfg.ServerAddr
		}
		client, err := remote.New(server)
		if err != nil {
			return err
		}

		if !keysWatch {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			rows, err := client.FetchAll(ctx)
			if err != nil {
				return fmt.Errorf("获取键位分配失败: %w", err)
			}
			fmt.Println(renderKeys(cfg.KeySlots, rows))
			return nil
		}

		km := voxpro.NewKeyModel(client, voxpro.KeyModelOptions{RefreshInterval: cfg.RefreshInterval})
		km.OnChange(func() {
			fmt.Printf("\n[%s] %s\n", time.Now().Format("15:04:05"), km.Status())
			if err := km.LastError(); err != nil {
				fmt.Println(err)
			}
			fmt.Println(renderKeys(cfg.KeySlots, km.Snapshot()))
		})
		km.Start(context.Background())
		defer km.Close()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		return nil
	},
}

func renderKeys(slots []string, rows []model.Assignment) string {
	latest := voxpro.LatestBySlot(rows)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Key", "Title", "Mode", "Submitted", "URL"})
	for _, slot := range slots {
		a, ok := latest[slot]
		if !ok {
			tw.AppendRow(table.Row{slot, "-", "", "", ""})
			continue
		}
		tw.AppendRow(table.Row{
			slot,
			a.Title,
			voxpro.Classify(a.MediaURL, a.MediaType),
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
			a.MediaURL,
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignCenter},
		{Number: 5, WidthMax: 60},
	})
	return tw.Render()
}

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.Flags().StringVar(&keysServer, "server", "", "服务器地址 (默认 PUBLIC_BASE_URL 或本机 SERVER_ADDR)")
	keysCmd.Flags().BoolVarP(&keysWatch, "watch", "w", false, "订阅变更并持续刷新")
}
