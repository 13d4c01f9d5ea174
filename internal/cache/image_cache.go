package cache

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// 下载失败记录的保留时间，期间不再重试同一地址
const failureMemoTTL = 15 * time.Minute

// ImageCache 海报图片磁盘缓存
// 图片按 {mediaType}/{itemID}{ext} 存放在缓存目录下，
// 返回的相对路径由静态文件路由对外提供
type ImageCache struct {
	baseDir string
	client  *http.Client

	// failures 记录最近下载失败的地址，同步周期内避免反复请求
	failures Cache
}

// NewImageCache 创建图片缓存并确保目录结构存在
func NewImageCache(baseDir string) (*ImageCache, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "tv"), filepath.Join(baseDir, "movie")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create image cache directory %s: %w", dir, err)
		}
	}
	return &ImageCache{
		baseDir: baseDir,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		failures: NewMemoryCache(),
	}, nil
}

// BaseDir 返回缓存根目录，用于挂载静态文件路由
func (c *ImageCache) BaseDir() string {
	return c.baseDir
}

// SaveFromURL 下载图片并写入缓存，返回相对于缓存根目录的路径
// 文件已存在时直接复用，providerName只用于日志
func (c *ImageCache) SaveFromURL(ctx context.Context, imageURL, providerName, mediaType, itemID string) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("no image URL provided")
	}
	if itemID == "" {
		return "", fmt.Errorf("no item ID provided")
	}

	safeID := strings.NewReplacer("/", "_", "\\", "_").Replace(itemID)
	relative := path.Join(mediaType, safeID+extensionFromURL(imageURL))
	target := filepath.Join(c.baseDir, filepath.FromSlash(relative))

	if _, err := os.Stat(target); err == nil {
		return relative, nil
	}

	if _, failed := c.failures.Get(imageURL); failed {
		return "", fmt.Errorf("download of %s recently failed, skipping retry", imageURL)
	}

	if err := c.download(ctx, imageURL, target); err != nil {
		c.failures.Set(imageURL, true, failureMemoTTL)
		return "", err
	}

	log.Printf("Cached image for %s item %s at %s", providerName, itemID, relative)
	return relative, nil
}

// Delete 删除一个缓存文件，文件不存在视为成功
func (c *ImageCache) Delete(relativePath string) error {
	if relativePath == "" {
		return nil
	}
	target := filepath.Join(c.baseDir, filepath.FromSlash(relativePath))
	cleaned := filepath.Clean(target)
	if !strings.HasPrefix(cleaned, filepath.Clean(c.baseDir)+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside the cache directory", relativePath)
	}
	if err := os.Remove(cleaned); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cached image %s: %w", relativePath, err)
	}
	return nil
}

// download 拉取图片并原子写入目标路径
func (c *ImageCache) download(ctx context.Context, imageURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download image from %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image download from %s returned status %d", imageURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	// 先写临时文件再改名，避免中断后留下半截图片
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write image data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to move image into cache: %w", err)
	}
	return nil
}

// extensionFromURL 从URL路径提取文件扩展名，无法判断时默认.jpg
func extensionFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return ".jpg"
	}
	ext := path.Ext(parsed.Path)
	if ext == "" {
		return ".jpg"
	}
	return ext
}
