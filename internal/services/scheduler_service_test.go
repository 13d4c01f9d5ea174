package services

import (
	"context"
	"testing"
	"time"

	"discovarr/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestSchedulerServiceInitialize(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupServiceDB(t)
	service := NewSchedulerService(db, time.Minute)
	ctx := context.Background()

	t.Run("创建默认调度", func(t *testing.T) {
		require.NoError(t, service.Initialize(ctx))

		var weekly models.Schedule
		require.NoError(t, db.Where("job_id = ?", "recently_watched").First(&weekly).Error)
		assert.Equal(t, JobProcessWatchHistory, weekly.FuncName)
		assert.False(t, weekly.Enabled)
		assert.Equal(t, "sun", weekly.DayOfWeek)
		require.NotNil(t, weekly.Hour)
		assert.Equal(t, 0, *weekly.Hour)
		require.NotNil(t, weekly.SearchID)
		assert.Equal(t, uint(DefaultSearchID), *weekly.SearchID)

		var sync models.Schedule
		require.NoError(t, db.Where("job_id = ?", JobSyncWatchHistory).First(&sync).Error)
		assert.True(t, sync.Enabled)
		require.NotNil(t, sync.Hour)
		assert.Equal(t, 3, *sync.Hour)
		assert.Equal(t, "*", sync.DayOfWeek)
	})

	t.Run("重复初始化保留用户修改", func(t *testing.T) {
		err := db.Model(&models.Schedule{}).
			Where("job_id = ?", JobSyncWatchHistory).
			Update("enabled", false).Error
		require.NoError(t, err)

		require.NoError(t, service.Initialize(ctx))

		var sync models.Schedule
		require.NoError(t, db.Where("job_id = ?", JobSyncWatchHistory).First(&sync).Error)
		assert.False(t, sync.Enabled)

		var count int64
		require.NoError(t, db.Model(&models.Schedule{}).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})
}

func TestSchedulerMatchesTime(t *testing.T) {
	// 2025-03-02是周日
	now := time.Date(2025, 3, 2, 3, 15, 0, 0, time.UTC)

	tests := []struct {
		name     string
		schedule *models.Schedule
		want     bool
	}{
		{
			name:     "全部通配",
			schedule: &models.Schedule{Year: "*", Month: "*", Day: "*", DayOfWeek: "*"},
			want:     true,
		},
		{
			name:     "空字符串视为通配",
			schedule: &models.Schedule{},
			want:     true,
		},
		{
			name:     "时分精确命中",
			schedule: &models.Schedule{Hour: intPtr(3), Minute: intPtr(15)},
			want:     true,
		},
		{
			name:     "分钟不匹配",
			schedule: &models.Schedule{Hour: intPtr(3), Minute: intPtr(16)},
			want:     false,
		},
		{
			name:     "小时不匹配",
			schedule: &models.Schedule{Hour: intPtr(4), Minute: intPtr(15)},
			want:     false,
		},
		{
			name:     "日期命中",
			schedule: &models.Schedule{Year: "2025", Month: "3", Day: "2"},
			want:     true,
		},
		{
			name:     "日不匹配",
			schedule: &models.Schedule{Day: "3"},
			want:     false,
		},
		{
			name:     "月不匹配",
			schedule: &models.Schedule{Month: "4"},
			want:     false,
		},
		{
			name:     "年不匹配",
			schedule: &models.Schedule{Year: "2024"},
			want:     false,
		},
		{
			name:     "星期缩写命中",
			schedule: &models.Schedule{DayOfWeek: "sun"},
			want:     true,
		},
		{
			name:     "完整星期名命中",
			schedule: &models.Schedule{DayOfWeek: "Sunday"},
			want:     true,
		},
		{
			name:     "星期数字命中",
			schedule: &models.Schedule{DayOfWeek: "0"},
			want:     true,
		},
		{
			name:     "星期不匹配",
			schedule: &models.Schedule{DayOfWeek: "mon"},
			want:     false,
		},
		{
			name:     "星期缩写过短",
			schedule: &models.Schedule{DayOfWeek: "su"},
			want:     false,
		},
		{
			name:     "非法日期字段",
			schedule: &models.Schedule{Day: "abc"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesTime(tt.schedule, now))
		})
	}
}

func TestSchedulerUpsertForSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupServiceDB(t)
	service := NewSchedulerService(db, time.Minute)
	ctx := context.Background()

	t.Run("新建调度", func(t *testing.T) {
		schedule, err := service.UpsertForSearch(ctx, 5, &ScheduleRequest{
			Hour:      intPtr(2),
			Minute:    intPtr(0),
			DayOfWeek: "fri",
			Enabled:   true,
			Prompt:    "weekly picks",
		})
		require.NoError(t, err)
		assert.Equal(t, "get_similar_media_5", schedule.JobID)
		assert.Equal(t, JobSimilarMedia, schedule.FuncName)
		assert.Equal(t, "*", schedule.Year)
		assert.Equal(t, "fri", schedule.DayOfWeek)

		kwargs, err := schedule.GetKwargs()
		require.NoError(t, err)
		assert.Equal(t, float64(5), kwargs["search_id"])
		assert.Equal(t, "weekly picks", kwargs["custom_prompt"])
		assert.Nil(t, kwargs["media_name"])
	})

	t.Run("再次保存更新同一行", func(t *testing.T) {
		schedule, err := service.UpsertForSearch(ctx, 5, &ScheduleRequest{
			Hour:    intPtr(6),
			Minute:  intPtr(30),
			Enabled: false,
		})
		require.NoError(t, err)
		require.NotNil(t, schedule.Hour)
		assert.Equal(t, 6, *schedule.Hour)
		assert.False(t, schedule.Enabled)
		assert.Equal(t, "*", schedule.DayOfWeek)

		// 省略提示词时custom_prompt记为null
		kwargs, err := schedule.GetKwargs()
		require.NoError(t, err)
		assert.Nil(t, kwargs["custom_prompt"])

		var count int64
		require.NoError(t, db.Model(&models.Schedule{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestSchedulerGetAndDeleteForSearch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupServiceDB(t)
	service := NewSchedulerService(db, time.Minute)
	ctx := context.Background()

	t.Run("不存在的调度返回nil", func(t *testing.T) {
		schedule, err := service.GetForSearch(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, schedule)
	})

	t.Run("删除不存在的调度返回ErrNotFound", func(t *testing.T) {
		err := service.DeleteForSearch(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("删除已有调度", func(t *testing.T) {
		_, err := service.UpsertForSearch(ctx, 7, &ScheduleRequest{Enabled: true})
		require.NoError(t, err)

		require.NoError(t, service.DeleteForSearch(ctx, 7))

		schedule, err := service.GetForSearch(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, schedule)
	})
}

func TestSchedulerTrigger(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupServiceDB(t)
	service := NewSchedulerService(db, time.Minute)
	ctx := context.Background()
	require.NoError(t, service.Initialize(ctx))

	t.Run("执行已注册的任务", func(t *testing.T) {
		var got *models.Schedule
		service.RegisterJob(JobSyncWatchHistory, func(ctx context.Context, schedule *models.Schedule) error {
			got = schedule
			return nil
		})

		require.NoError(t, service.Trigger(ctx, JobSyncWatchHistory))
		require.NotNil(t, got)
		assert.Equal(t, JobSyncWatchHistory, got.JobID)
	})

	t.Run("停用的任务视为不存在", func(t *testing.T) {
		err := service.Trigger(ctx, "recently_watched")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("未注册函数时报错", func(t *testing.T) {
		err := db.Model(&models.Schedule{}).
			Where("job_id = ?", "recently_watched").
			Update("enabled", true).Error
		require.NoError(t, err)

		err = service.Trigger(ctx, "recently_watched")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no registered function")
	})

	t.Run("未知任务返回ErrNotFound", func(t *testing.T) {
		err := service.Trigger(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSchedulerRunLoop(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db := setupServiceDB(t)
	service := NewSchedulerService(db, 10*time.Millisecond)
	ctx := context.Background()

	_, err := service.UpsertForSearch(ctx, 1, &ScheduleRequest{Enabled: true})
	require.NoError(t, err)

	fired := make(chan string, 1)
	service.RegisterJob(JobSimilarMedia, func(ctx context.Context, schedule *models.Schedule) error {
		select {
		case fired <- schedule.JobID:
		default:
		}
		return nil
	})

	require.NoError(t, service.Start(ctx))
	defer service.Stop()

	select {
	case jobID := <-fired:
		assert.Equal(t, "get_similar_media_1", jobID)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job did not fire")
	}
}
