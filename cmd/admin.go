package cmd

import (
	"context"
	"fmt"
	"strings"

	"voxpro/core/auth"
	"voxpro/db"
	"voxpro/model"
	"voxpro/repository"

	"github.com/spf13/cobra"
)

var (
	adminUsername string
	adminPassword string
	adminEmail    string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "管理员账号",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "创建管理员账号",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(adminUsername)
		if username == "" {
			return fmt.Errorf("需要用户名")
		}
		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			return err
		}

		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB()
		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}

		user := &model.User{Username: username, Email: strings.TrimSpace(adminEmail), PasswordHash: hash}
		if err := repository.NewGormUserRepository(gdb).Create(context.Background(), user); err != nil {
			return fmt.Errorf("创建用户失败: %w", err)
		}
		fmt.Printf("管理员 %s 创建成功 (id=%d)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "用户名")
	adminCreateCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "密码")
	adminCreateCmd.Flags().StringVarP(&adminEmail, "email", "e", "", "邮箱")
	adminCreateCmd.MarkFlagRequired("username")
	adminCreateCmd.MarkFlagRequired("password")
}
