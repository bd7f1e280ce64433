// Package testsupport 包含测试用的内存仓库和可编排的外部服务替身
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"ReadingFM/model"
	"ReadingFM/repository"

	"github.com/google/uuid"
)

// Store 内存数据库，四个仓库共享同一份数据。
// Fail 以方法名为键注入错误，例如 Fail["CreateTrack"] = errors.New("boom")。
type Store struct {
	mu       sync.Mutex
	journeys map[string]*model.ReadingJourney
	tracks   map[string]*model.MusicTrack
	logs     map[string]*model.ReadingLog
	tags     map[string]*model.EmotionTag
	links    []*model.LogEmotion

	Fail   map[string]error
	Calls  map[string]int
	before map[string]func()
}

// NewStore 创建空的内存数据库
func NewStore() *Store {
	return &Store{
		journeys: make(map[string]*model.ReadingJourney),
		tracks:   make(map[string]*model.MusicTrack),
		logs:     make(map[string]*model.ReadingLog),
		tags:     make(map[string]*model.EmotionTag),
		Fail:     make(map[string]error),
		Calls:    make(map[string]int),
		before:   make(map[string]func()),
	}
}

func (s *Store) hit(op string) error {
	s.Calls[op]++
	return s.Fail[op]
}

// CallCount 方法调用次数
func (s *Store) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[op]
}

// SetFail 注入错误，err 为 nil 时清除
func (s *Store) SetFail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Fail, op)
		return
	}
	s.Fail[op] = err
}

// BeforeOnce 在下一次调用 op 之前执行 fn，只执行一次。fn 运行时不持有锁，可以调用 Store 的其他方法，
// 用来模拟并发请求插在读和写之间。
func (s *Store) BeforeOnce(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before[op] = fn
}

func (s *Store) runBefore(op string) {
	s.mu.Lock()
	fn := s.before[op]
	delete(s.before, op)
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Journeys 返回 JourneyRepository 视图
func (s *Store) Journeys() repository.JourneyRepository { return &journeyRepo{s} }

// Tracks 返回 TrackRepository 视图
func (s *Store) Tracks() repository.TrackRepository { return &trackRepo{s} }

// Logs 返回 LogRepository 视图
func (s *Store) Logs() repository.LogRepository { return &logRepo{s} }

// Emotions 返回 EmotionTagRepository 视图
func (s *Store) Emotions() repository.EmotionTagRepository { return &emotionRepo{s} }

// ========== 断言辅助 ==========

// JourneyCount 旅程总数
func (s *Store) JourneyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.journeys)
}

// TrackCount 音乐总数
func (s *Store) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// LogCount 记录总数
func (s *Store) LogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// Track 直接读取音乐记录副本
func (s *Store) Track(id string) *model.MusicTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tracks[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// Journey 直接读取旅程副本
func (s *Store) Journey(id string) *model.ReadingJourney {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.journeys[id]; ok {
		c := *j
		return &c
	}
	return nil
}

// PutJourney 直接写入旅程
func (s *Store) PutJourney(j *model.ReadingJourney) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	c := *j
	s.journeys[j.ID] = &c
}

// SetJourneyStatus 直接修改旅程状态
func (s *Store) SetJourneyStatus(id string, status model.JourneyStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.journeys[id]; ok {
		j.Status = status
	}
}

// PutTrack 直接写入音乐记录
func (s *Store) PutTrack(t *model.MusicTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	c := *t
	s.tracks[t.ID] = &c
}

// PutLog 直接写入记录
func (s *Store) PutLog(l *model.ReadingLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	c := *l
	s.logs[l.ID] = &c
}

// PutTag 写入情绪标签
func (s *Store) PutTag(tag *model.EmotionTag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	c := *tag
	s.tags[tag.ID] = &c
}

// Tag 按名称读取标签
func (s *Store) Tag(name string) *model.EmotionTag {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tags {
		if t.Name == name {
			c := *t
			return &c
		}
	}
	return nil
}

// LogsOf 旅程下的记录，按版本升序
func (s *Store) LogsOf(journeyID string) []*model.ReadingLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logsOfLocked(journeyID)
}

func (s *Store) logsOfLocked(journeyID string) []*model.ReadingLog {
	var out []*model.ReadingLog
	for _, l := range s.logs {
		if l.JourneyID == journeyID {
			c := *l
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// ========== JourneyRepository ==========

type journeyRepo struct{ s *Store }

func (r *journeyRepo) CreateJourney(ctx context.Context, j *model.ReadingJourney) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("CreateJourney"); err != nil {
		return err
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now()
	j.CreatedAt, j.UpdatedAt = now, now
	c := *j
	r.s.journeys[j.ID] = &c
	return nil
}

func (r *journeyRepo) GetJourneyByID(ctx context.Context, id string) (*model.ReadingJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("GetJourneyByID"); err != nil {
		return nil, err
	}
	j, ok := r.s.journeys[id]
	if !ok {
		return nil, nil
	}
	c := *j
	return &c, nil
}

func (r *journeyRepo) DeleteJourney(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("DeleteJourney"); err != nil {
		return err
	}
	delete(r.s.journeys, id)
	return nil
}

func (r *journeyRepo) MarkCompleted(ctx context.Context, id string, c repository.JourneyCompletion) (bool, error) {
	r.s.runBefore("MarkJourneyCompleted")
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("MarkJourneyCompleted"); err != nil {
		return false, err
	}
	j, ok := r.s.journeys[id]
	if !ok || j.Status != model.JourneyStatusReading {
		return false, nil
	}
	rating, oneLiner, review, at := c.Rating, c.OneLiner, c.Review, c.CompletedAt
	j.Status = model.JourneyStatusCompleted
	j.Rating = &rating
	j.OneLiner = &oneLiner
	j.Review = &review
	j.ReviewIsPublic = c.ReviewIsPublic
	j.CompletedAt = &at
	j.UpdatedAt = at
	return true, nil
}

func (r *journeyRepo) ListJourneysByUser(ctx context.Context, userID string, filter repository.JourneyFilter) ([]*model.ReadingJourney, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListJourneysByUser"); err != nil {
		return nil, err
	}
	var out []*model.ReadingJourney
	for _, j := range r.s.journeys {
		if j.UserID != userID || (filter.Status != "" && j.Status != filter.Status) {
			continue
		}
		c := *j
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.OldestFirst {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// ========== TrackRepository ==========

type trackRepo struct{ s *Store }

func (r *trackRepo) CreateTrack(ctx context.Context, t *model.MusicTrack) error {
	r.s.runBefore("CreateTrack")
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("CreateTrack"); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TrackStatusPending
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	c := *t
	r.s.tracks[t.ID] = &c
	return nil
}

func (r *trackRepo) GetTrackByID(ctx context.Context, id string) (*model.MusicTrack, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("GetTrackByID"); err != nil {
		return nil, err
	}
	t, ok := r.s.tracks[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *trackRepo) GetTracksByIDs(ctx context.Context, ids []string) ([]*model.MusicTrack, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("GetTracksByIDs"); err != nil {
		return nil, err
	}
	var out []*model.MusicTrack
	for _, id := range ids {
		if t, ok := r.s.tracks[id]; ok {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *trackRepo) DeleteTrack(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("DeleteTrack"); err != nil {
		return err
	}
	delete(r.s.tracks, id)
	return nil
}

func (r *trackRepo) MarkGenerating(ctx context.Context, id string, maxAttempts int, startedAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("MarkGenerating"); err != nil {
		return false, err
	}
	t, ok := r.s.tracks[id]
	if !ok {
		return false, nil
	}
	if t.Status != model.TrackStatusPending && t.Status != model.TrackStatusError {
		return false, nil
	}
	if maxAttempts > 0 && t.GenerationAttempts >= maxAttempts {
		return false, nil
	}
	at := startedAt
	t.Status = model.TrackStatusGenerating
	t.GenerationAttempts++
	t.GenerationStartedAt = &at
	t.ErrorMessage = nil
	return true, nil
}

func (r *trackRepo) SetRenderJobID(ctx context.Context, id, jobID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("SetRenderJobID"); err != nil {
		return err
	}
	if t, ok := r.s.tracks[id]; ok {
		t.RenderJobID = jobID
	}
	return nil
}

func (r *trackRepo) MarkCompleted(ctx context.Context, id, fileURL string, duration *int, fileSize int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("MarkTrackCompleted"); err != nil {
		return err
	}
	t, ok := r.s.tracks[id]
	if !ok || t.Status != model.TrackStatusGenerating {
		return repository.ErrTransitionRejected
	}
	size := fileSize
	t.Status = model.TrackStatusCompleted
	t.FileURL = fileURL
	t.Duration = duration
	t.FileSize = &size
	t.ErrorMessage = nil
	return nil
}

func (r *trackRepo) MarkFailed(ctx context.Context, id, message string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("MarkFailed"); err != nil {
		return err
	}
	t, ok := r.s.tracks[id]
	if !ok || t.Status != model.TrackStatusGenerating {
		return repository.ErrTransitionRejected
	}
	msg := message
	t.Status = model.TrackStatusError
	t.ErrorMessage = &msg
	t.FileURL = ""
	return nil
}

func (r *trackRepo) FailStaleGenerating(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("FailStaleGenerating"); err != nil {
		return nil, err
	}
	var ids []string
	for id, t := range r.s.tracks {
		if t.Status == model.TrackStatusGenerating && t.GenerationStartedAt != nil && t.GenerationStartedAt.Before(cutoff) {
			msg := message
			t.Status = model.TrackStatusError
			t.ErrorMessage = &msg
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ========== LogRepository ==========

type logRepo struct{ s *Store }

func (r *logRepo) CreateLog(ctx context.Context, l *model.ReadingLog) error {
	r.s.runBefore("CreateLog")
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("CreateLog"); err != nil {
		return err
	}
	for _, existing := range r.s.logs {
		if existing.JourneyID == l.JourneyID && existing.Version == l.Version {
			return repository.ErrVersionConflict
		}
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.CreatedAt = time.Now()
	c := *l
	c.Emotions = nil
	c.MusicTrack = nil
	r.s.logs[l.ID] = &c
	return nil
}

func (r *logRepo) DeleteLog(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("DeleteLog"); err != nil {
		return err
	}
	delete(r.s.logs, id)
	return nil
}

func (r *logRepo) CountLogs(ctx context.Context, journeyID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("CountLogs"); err != nil {
		return 0, err
	}
	return int64(len(r.s.logsOfLocked(journeyID))), nil
}

func (r *logRepo) ListLogs(ctx context.Context, journeyID string) ([]*model.ReadingLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListLogs"); err != nil {
		return nil, err
	}
	return r.s.logsOfLocked(journeyID), nil
}

func (r *logRepo) ListRecentLogs(ctx context.Context, journeyID string, limit int) ([]*model.ReadingLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListRecentLogs"); err != nil {
		return nil, err
	}
	logs := r.s.logsOfLocked(journeyID)
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (r *logRepo) GetLogByTrackID(ctx context.Context, trackID string) (*model.ReadingLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("GetLogByTrackID"); err != nil {
		return nil, err
	}
	for _, l := range r.s.logs {
		if l.MusicTrackID != nil && *l.MusicTrackID == trackID {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

func (r *logRepo) CountByJourneys(ctx context.Context, journeyIDs []string) (map[string]repository.LogCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("CountByJourneys"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(journeyIDs))
	for _, id := range journeyIDs {
		want[id] = true
	}
	out := make(map[string]repository.LogCounts)
	for _, l := range r.s.logs {
		if !want[l.JourneyID] {
			continue
		}
		c := out[l.JourneyID]
		c.Logs++
		if l.MusicTrackID != nil {
			c.Tracks++
		}
		out[l.JourneyID] = c
	}
	return out, nil
}

// ========== EmotionTagRepository ==========

type emotionRepo struct{ s *Store }

func (r *emotionRepo) ListTags(ctx context.Context) ([]*model.EmotionTag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListTags"); err != nil {
		return nil, err
	}
	var out []*model.EmotionTag
	for _, t := range r.s.tags {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPredefined != out[j].IsPredefined {
			return out[i].IsPredefined
		}
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *emotionRepo) FindTagsByNames(ctx context.Context, names []string) ([]*model.EmotionTag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("FindTagsByNames"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*model.EmotionTag
	for _, t := range r.s.tags {
		if want[t.Name] {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *emotionRepo) LinkLogEmotions(ctx context.Context, logID string, tagIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if len(tagIDs) == 0 {
		return nil
	}
	if err := r.s.hit("LinkLogEmotions"); err != nil {
		return err
	}
	for _, id := range tagIDs {
		r.s.links = append(r.s.links, &model.LogEmotion{ID: uuid.NewString(), LogID: logID, EmotionTagID: id})
		if t, ok := r.s.tags[id]; ok {
			t.UsageCount++
		}
	}
	return nil
}

func (r *emotionRepo) ListEmotionNames(ctx context.Context, logIDs []string) (map[string][]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.hit("ListEmotionNames"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(logIDs))
	for _, id := range logIDs {
		want[id] = true
	}
	out := make(map[string][]string)
	for _, link := range r.s.links {
		if !want[link.LogID] {
			continue
		}
		if t, ok := r.s.tags[link.EmotionTagID]; ok {
			out[link.LogID] = append(out[link.LogID], t.Name)
		}
	}
	return out, nil
}
