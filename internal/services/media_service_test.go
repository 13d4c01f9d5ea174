package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"discovarr/internal/cache"
	"discovarr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupMediaService(t *testing.T) (*MediaServiceImpl, *gorm.DB, *cache.ImageCache) {
	t.Helper()
	db := setupServiceDB(t)
	images, err := cache.NewImageCache(t.TempDir())
	require.NoError(t, err)
	return NewMediaService(db, images), db, images
}

func seedMedia(t *testing.T, db *gorm.DB, media *models.Media) *models.Media {
	t.Helper()
	if media.EntityType == "" {
		media.EntityType = models.EntityTypeSuggestion
	}
	if media.MediaType == "" {
		media.MediaType = models.MediaTypeMovie
	}
	require.NoError(t, db.Create(media).Error)
	return media
}

func TestMediaServiceLists(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	service, db, _ := setupMediaService(t)
	ctx := context.Background()

	seedMedia(t, db, &models.Media{Title: "Primer"})
	seedMedia(t, db, &models.Media{Title: "Coherence"})
	seedMedia(t, db, &models.Media{Title: "Timecrimes"})
	seedMedia(t, db, &models.Media{Title: "Zodiac", Ignore: true})
	seedMedia(t, db, &models.Media{Title: "Alien", Ignore: true})

	t.Run("未忽略的条目按创建时间倒序", func(t *testing.T) {
		media, err := service.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, media, 3)
		assert.Equal(t, "Timecrimes", media[0].Title)
		assert.Equal(t, "Coherence", media[1].Title)
		assert.Equal(t, "Primer", media[2].Title)
	})

	t.Run("忽略的条目按标题排序", func(t *testing.T) {
		media, err := service.ListIgnored(ctx)
		require.NoError(t, err)
		require.Len(t, media, 2)
		assert.Equal(t, "Alien", media[0].Title)
		assert.Equal(t, "Zodiac", media[1].Title)
	})
}

func TestMediaServiceIgnoreFlags(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	service, db, _ := setupMediaService(t)
	ctx := context.Background()
	media := seedMedia(t, db, &models.Media{Title: "Primer"})

	t.Run("翻转忽略状态", func(t *testing.T) {
		updated, err := service.ToggleIgnore(ctx, media.ID)
		require.NoError(t, err)
		assert.True(t, updated.Ignore)

		updated, err = service.ToggleIgnore(ctx, media.ID)
		require.NoError(t, err)
		assert.False(t, updated.Ignore)
	})

	t.Run("直接设置忽略状态", func(t *testing.T) {
		require.NoError(t, service.SetIgnore(ctx, media.ID, true))

		var reloaded models.Media
		require.NoError(t, db.First(&reloaded, media.ID).Error)
		assert.True(t, reloaded.Ignore)
	})

	t.Run("不存在的条目返回ErrNotFound", func(t *testing.T) {
		_, err := service.ToggleIgnore(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)

		err = service.SetIgnore(ctx, 9999, true)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMediaServiceDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	service, db, images := setupMediaService(t)
	ctx := context.Background()

	t.Run("删除条目并清理缓存的海报", func(t *testing.T) {
		posterPath := filepath.Join(images.BaseDir(), "movie", "42.jpg")
		require.NoError(t, os.WriteFile(posterPath, []byte("poster"), 0644))
		media := seedMedia(t, db, &models.Media{Title: "Primer", PosterURL: "movie/42.jpg"})

		require.NoError(t, service.Delete(ctx, media.ID))

		var count int64
		require.NoError(t, db.Model(&models.Media{}).Where("id = ?", media.ID).Count(&count).Error)
		assert.Zero(t, count)

		_, err := os.Stat(posterPath)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("远端海报地址不做本地清理", func(t *testing.T) {
		media := seedMedia(t, db, &models.Media{Title: "Coherence", PosterURL: "https://image.tmdb.org/p/c.jpg"})
		assert.NoError(t, service.Delete(ctx, media.ID))
	})

	t.Run("不存在的条目返回ErrNotFound", func(t *testing.T) {
		err := service.Delete(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMediaServiceSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	service, db, _ := setupMediaService(t)
	ctx := context.Background()

	seedMedia(t, db, &models.Media{Title: "The Matrix", TmdbID: "603"})
	seedMedia(t, db, &models.Media{Title: "Matrix Reloaded", TmdbID: "604"})
	seedMedia(t, db, &models.Media{Title: "Inception", TmdbID: "27205"})

	t.Run("忽略大小写的模糊匹配", func(t *testing.T) {
		results, err := service.Search(ctx, "MATRIX")
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Matrix Reloaded", results[0].Title)
		assert.Equal(t, "The Matrix", results[1].Title)
		assert.Equal(t, "604", results[0].TmdbID)
		assert.NotZero(t, results[0].MediaID)
	})

	t.Run("无命中时返回空", func(t *testing.T) {
		results, err := service.Search(ctx, "solaris")
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestMediaServiceFieldValues(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	service, db, _ := setupMediaService(t)
	ctx := context.Background()

	seedMedia(t, db, &models.Media{Title: "Primer", Genres: `["Sci-Fi","Thriller"]`, OriginalLanguage: "en"})
	seedMedia(t, db, &models.Media{Title: "Timecrimes", Genres: `["Thriller","Drama"]`, OriginalLanguage: "es"})
	seedMedia(t, db, &models.Media{Title: "Coherence", Networks: "Netflix, HBO", OriginalLanguage: "en"})

	t.Run("JSON数组列拆成单个元素", func(t *testing.T) {
		values, err := service.FieldValues(ctx, "genres")
		require.NoError(t, err)
		assert.Equal(t, []string{"Drama", "Sci-Fi", "Thriller"}, values)
	})

	t.Run("逗号分隔值拆成单个元素", func(t *testing.T) {
		values, err := service.FieldValues(ctx, "networks")
		require.NoError(t, err)
		assert.Equal(t, []string{"HBO", "Netflix"}, values)
	})

	t.Run("普通列去重排序", func(t *testing.T) {
		values, err := service.FieldValues(ctx, "original_language")
		require.NoError(t, err)
		assert.Equal(t, []string{"en", "es"}, values)
	})

	t.Run("白名单外的列报错", func(t *testing.T) {
		_, err := service.FieldValues(ctx, "id; DROP TABLE media")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid media column")
	})
}
