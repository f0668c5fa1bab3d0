package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	ByExtension  map[string]int64 // object count per lower-cased extension
}

// Stats summarises every object under prefix.
func Stats(ctx context.Context, store BlobStore, prefix string) (*BucketStats, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	stats := &BucketStats{ByExtension: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(obj.Key)), ".")
		if ext == "" {
			ext = "none"
		}
		stats.ByExtension[ext]++
	}
	return stats, nil
}

// Tree renders objects under prefix as an indented directory listing.
func Tree(ctx context.Context, store BlobStore, prefix string) (string, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	var b strings.Builder
	printed := make(map[string]bool)
	for _, obj := range objects {
		parts := strings.Split(obj.Key, "/")
		for i := 0; i < len(parts)-1; i++ {
			dir := strings.Join(parts[:i+1], "/")
			if printed[dir] {
				continue
			}
			printed[dir] = true
			fmt.Fprintf(&b, "%s%s/\n", strings.Repeat("  ", i), parts[i])
		}
		fmt.Fprintf(&b, "%s%s (%s)\n", strings.Repeat("  ", len(parts)-1), parts[len(parts)-1], FormatSize(obj.Size))
	}
	return b.String(), nil
}

// DeletePrefix 递归删除目录，返回删除的对象数
func DeletePrefix(ctx context.Context, store BlobStore, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("删除操作需要指定目录前缀")
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("目录 %s 为空或不存在", prefix)
	}
	for i, obj := range objects {
		if err := store.Delete(ctx, obj.Key); err != nil {
			return i, fmt.Errorf("删除对象 %s 失败: %w", obj.Key, err)
		}
	}
	return len(objects), nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
