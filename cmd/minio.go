package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"voxpro/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "媒体存储桶管理",
	Long:  `查看和管理媒体存储中的文件 (minio, s3 或 local，由 STORAGE_PROVIDER 决定)，支持列出文件、统计信息、递归目录结构、删除目录。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		store, err := storage.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("无法连接到媒体存储: %w", err)
		}
		fmt.Printf("媒体存储: %s\n", store.Name())

		switch {
		case minioDelete:
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			n, err := storage.DeletePrefix(ctx, store, minioPrefix)
			if err != nil {
				return fmt.Errorf("删除目录失败: %w", err)
			}
			fmt.Printf("已删除 %d 个对象\n", n)

		case minioRecursive:
			fmt.Printf("\n递归显示目录结构 (前缀: %s)...\n", minioPrefix)
			tree, err := storage.Tree(ctx, store, minioPrefix)
			if err != nil {
				return fmt.Errorf("显示目录结构失败: %w", err)
			}
			fmt.Print(tree)

		case minioStats:
			fmt.Println("\n获取存储桶统计信息...")
			stats, err := storage.Stats(ctx, store, minioPrefix)
			if err != nil {
				return fmt.Errorf("获取存储桶统计信息失败: %w", err)
			}
			fmt.Printf("对象数量: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改: %s\n", stats.LastModified.Format(time.RFC3339))
			}
			exts := make([]string, 0, len(stats.ByExtension))
			for ext := range stats.ByExtension {
				exts = append(exts, ext)
			}
			sort.Strings(exts)
			for _, ext := range exts {
				fmt.Printf("  .%-8s %d\n", ext, stats.ByExtension[ext])
			}

		default:
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			objects, err := store.List(ctx, minioPrefix)
			if err != nil {
				return fmt.Errorf("列出文件失败: %w", err)
			}
			for _, obj := range objects {
				fmt.Printf("%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04"))
			}
			fmt.Printf("共 %d 个文件\n", len(objects))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归显示目录结构")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有文件
  voxpro_server minio

  # 只看某个键位的上传
  voxpro_server minio -p "voxpro/A/"

  # 显示存储桶统计信息
  voxpro_server minio -s

  # 递归显示目录结构
  voxpro_server minio -r -p "voxpro/"

  # 删除目录及其下的所有文件
  voxpro_server minio -d -p "voxpro/B/"`
}
