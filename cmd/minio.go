package cmd

import (
	"context"
	"fmt"
	"log"

	"JamFM/config"
	"JamFM/storage"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioDelete string
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the object tier",
	Long:  `List the Opus artifacts in the object tier, or delete one by key.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if cfg.MinioEndpoint == "" {
			log.Fatal("object tier is disabled, no MINIO_ENDPOINT configured")
		}
		fmt.Printf("MinIO target: %s, bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("failed to connect to MinIO: %v", err)
		}
		client := storage.GetMinioClient()

		ctx := context.Background()

		if minioDelete != "" {
			if err := client.RemoveObject(ctx, cfg.MinioBucket, minioDelete, minio.RemoveObjectOptions{}); err != nil {
				log.Fatalf("failed to delete %s: %v", minioDelete, err)
			}
			fmt.Printf("deleted %s\n", minioDelete)
			return
		}

		prefix := minioPrefix
		if prefix == "" {
			prefix = cfg.MinioPrefix
		}

		var count int
		var bytes int64
		for object := range client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: true,
		}) {
			if object.Err != nil {
				log.Fatalf("failed to list objects: %v", object.Err)
			}
			fmt.Printf("%s\t%d bytes\t%s\n", object.Key, object.Size, object.LastModified.Format("2006-01-02 15:04:05"))
			count++
			bytes += object.Size
		}
		fmt.Printf("\n%d objects, %d bytes total\n", count, bytes)
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "key prefix to list")
	minioCmd.Flags().StringVarP(&minioDelete, "delete", "d", "", "object key to delete")
	rootCmd.AddCommand(minioCmd)
}
