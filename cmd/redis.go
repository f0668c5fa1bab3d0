package cmd

import (
	"context"
	"fmt"
	"time"

	"voxpro/core/realtime"
	"voxpro/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("开始测试Redis连接...")
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer db.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println("开始测试Redis基本操作...")
		if err := db.TestRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		for _, table := range []string{realtime.TableAssignments, realtime.TableEvents, realtime.TableMediaFiles} {
			channel := realtime.ChannelFor(table)
			counts, err := client.PubSubNumSub(ctx, channel).Result()
			if err != nil {
				return fmt.Errorf("查询订阅数失败: %w", err)
			}
			fmt.Printf("  %-36s 订阅者: %d\n", channel, counts[channel])
		}

		fmt.Println("Redis测试完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
