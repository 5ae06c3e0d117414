// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	ProjectId     string
	BucketName    string
}

func NewClient(ctx context.Context, projectId, bucketName, saKeyPath string) (*Client, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", saKeyPath)
	}

	storageClient, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		ProjectId:     projectId,
		BucketName:    bucketName,
	}, nil
}

// BackupReport summarizes one volume backup run.
type BackupReport struct {
	Uploaded int
	Skipped  int
	Failed   []string
}

func (c *Client) UploadFile(ctx context.Context, localPath, gcsPath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file: %s: %w", localPath, err)
	}
	defer localFile.Close()

	// Get a writer for the GCS object
	obj := c.storageClient.Bucket(c.BucketName).Object(gcsPath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/octet-stream"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("failed to copy local file %s to GCS object %s: %w", localPath, gcsPath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", gcsPath, err)
	}
	return nil
}

// objectSize returns the remote object's size, or -1 if it does not
// exist yet.
func (c *Client) objectSize(ctx context.Context, gcsPath string) (int64, error) {
	attrs, err := c.storageClient.Bucket(c.BucketName).Object(gcsPath).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("failed to stat GCS object %s: %w", gcsPath, err)
	}
	return attrs.Size, nil
}

// BackupVolume uploads every file under volumeRoot to the bucket,
// preserving relative paths beneath gcsPrefix. Files whose remote
// object already has the same size are skipped, so re-running a backup
// only moves what changed. Per-file failures are collected and the
// rest of the volume still uploads.
func (c *Client) BackupVolume(ctx context.Context, volumeRoot, gcsPrefix string) (*BackupReport, error) {
	report := &BackupReport{}

	err := filepath.WalkDir(volumeRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(volumeRoot, path)
		if err != nil {
			return err
		}
		gcsPath := filepath.ToSlash(filepath.Join(gcsPrefix, rel))

		info, err := entry.Info()
		if err != nil {
			report.Failed = append(report.Failed, rel)
			return nil
		}
		remoteSize, err := c.objectSize(ctx, gcsPath)
		if err != nil {
			report.Failed = append(report.Failed, rel)
			return nil
		}
		if remoteSize == info.Size() {
			report.Skipped++
			return nil
		}

		if err := c.UploadFile(ctx, path, gcsPath); err != nil {
			report.Failed = append(report.Failed, rel)
			return nil
		}
		report.Uploaded++
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to walk volume %s: %w", volumeRoot, err)
	}
	return report, nil
}
