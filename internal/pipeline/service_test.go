package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/clock/system"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/reconcile"
	"github.com/JakeFAU/story-crawler/internal/resolver"
	"github.com/JakeFAU/story-crawler/internal/source/truyenfull"
	"github.com/JakeFAU/story-crawler/internal/storage/memory"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/upsert"
	"github.com/JakeFAU/story-crawler/internal/walker"
)

const storyURL = "https://truyenfull.vision/tien-nghich/"

const storyHTML = `<html><body>
<h3 class="title">Tiên Nghịch</h3>
<div class="info">
  <a itemprop="author" href="/tac-gia/nhi-can/">Nhĩ Căn</a>
  <a itemprop="genre" href="/the-loai/tien-hiep/">Tiên Hiệp</a>
  <span class="text-success">Full</span>
</div>
<div class="desc-text">Vương Lâm tu tiên.</div>
<ul class="list-chapter">
  <li><a href="/tien-nghich/chuong-1/">Chương 1: Ly hương</a></li>
  <li><a href="/tien-nghich/chuong-2/">Chương 2: Nhập môn</a></li>
</ul>
<ul class="pagination"><li class="active"><span>1</span></li><li><a href="/tien-nghich/trang-2/#list-chapter">2</a></li></ul>
</body></html>`

const secondPageHTML = `<html><body>
<ul class="list-chapter"><li><a href="/tien-nghich/chuong-3/">Chương 3: Trở về</a></li></ul>
<ul class="pagination"><li><a href="/tien-nghich/">1</a></li><li class="active"><span>2</span></li></ul>
</body></html>`

const chapterHTML = `<html><body>
<a class="chapter-title" href="/tien-nghich/chuong-2/">Chương 2: Nhập môn</a>
<div class="chapter-c">Nội dung.</div>
</body></html>`

type mapFetcher struct {
	pages map[string]string
	err   error
}

func (f mapFetcher) Fetch(_ context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", &crawler.FetchError{URL: url, StatusCode: 404, Kind: crawler.FetchErrorStatus}
	}
	return body, nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func newService(t *testing.T, f crawler.Fetcher, st store.Store) *Service {
	t.Helper()
	metrics.Init()
	source := truyenfull.New("https://truyenfull.vision")
	res := resolver.New(st, nil)
	return New(Deps{
		Fetcher:    f,
		Source:     source,
		Walker:     walker.New(f, source, noPause{}, walker.Config{MaxPages: 10}, nil),
		Resolver:   res,
		Reconciler: reconcile.New(st, nil),
		Writer:     upsert.New(st, res, system.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), upsert.Config{}, nil),
	})
}

func sitePages() map[string]string {
	return map[string]string{
		storyURL: storyHTML,
		"https://truyenfull.vision/tien-nghich/trang-2/#list-chapter": secondPageHTML,
		"https://truyenfull.vision/tien-nghich/chuong-2/":             chapterHTML,
	}
}

func TestFetchInfo(t *testing.T) {
	svc := newService(t, mapFetcher{pages: sitePages()}, memory.NewDocumentStore())

	info, err := svc.FetchInfo(context.Background(), " "+storyURL)
	require.NoError(t, err)
	require.Equal(t, "Tiên Nghịch", info.Name)
	require.Equal(t, "Nhĩ Căn", info.Author)
	require.Equal(t, []string{"Tiên Hiệp"}, info.Categories)
	require.Equal(t, storyURL, info.SourceURL)
}

func TestFetchInfoRequiresURL(t *testing.T) {
	svc := newService(t, mapFetcher{}, memory.NewDocumentStore())

	_, err := svc.FetchInfo(context.Background(), "  ")
	require.ErrorIs(t, err, crawler.ErrInvalidInput)
}

func TestFetchInfoSurfacesFetchError(t *testing.T) {
	svc := newService(t, mapFetcher{pages: map[string]string{}}, memory.NewDocumentStore())

	_, err := svc.FetchInfo(context.Background(), storyURL)
	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 404, fe.StatusCode)
}

func TestFetchChaptersWithoutStoredStory(t *testing.T) {
	svc := newService(t, mapFetcher{pages: sitePages()}, memory.NewDocumentStore())

	res, err := svc.FetchChapters(context.Background(), ChaptersRequest{URL: storyURL, StoryName: "Tiên Nghịch", StoryAuthor: "Nhĩ Căn"})
	require.NoError(t, err)
	require.Len(t, res.Stubs, 3)
	require.Nil(t, res.Debug.MatchedStoryID)
	for _, stub := range res.Stubs {
		require.False(t, stub.Exists)
	}
}

func TestFetchChaptersMarksSavedChapters(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocumentStore()
	svc := newService(t, mapFetcher{pages: sitePages()}, st)

	info, err := svc.FetchInfo(ctx, storyURL)
	require.NoError(t, err)
	story, err := svc.SaveStory(ctx, info)
	require.NoError(t, err)
	_, err = svc.SaveChapter(ctx, upsert.ChapterInput{
		StoryID:   story.ID,
		Title:     "Chương 2: Nhập môn",
		Content:   "x",
		SourceURL: "https://truyenfull.vision/tien-nghich/chuong-2",
		Number:    crawler.IntPtr(2),
	})
	require.NoError(t, err)

	res, err := svc.FetchChapters(ctx, ChaptersRequest{URL: storyURL, StoryName: info.Name, StoryAuthor: info.Author})
	require.NoError(t, err)
	require.NotNil(t, res.Debug.MatchedStoryID)
	require.Equal(t, story.ID, *res.Debug.MatchedStoryID)
	require.Equal(t, resolver.StrategyNameAuthor, res.Debug.Strategy)
	require.Equal(t, 1, res.Debug.DBChapterCount)
	require.Len(t, res.Stubs, 3)
	require.False(t, res.Stubs[0].Exists)
	require.True(t, res.Stubs[1].Exists)
	require.False(t, res.Stubs[2].Exists)
}

func TestFetchChaptersDegradesOnStoreError(t *testing.T) {
	boom := errors.New("db down")
	st := &failingStore{Store: memory.NewDocumentStore(), err: boom}
	svc := newService(t, mapFetcher{pages: sitePages()}, st)

	res, err := svc.FetchChapters(context.Background(), ChaptersRequest{URL: storyURL, StoryName: "Tiên Nghịch"})
	require.NoError(t, err)
	require.Len(t, res.Stubs, 3)
	require.Contains(t, res.Debug.StoreError, "db down")
	require.Nil(t, res.Debug.MatchedStoryID)
}

func TestFetchChaptersForUsesGivenStory(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocumentStore()
	svc := newService(t, mapFetcher{pages: sitePages()}, st)

	info, err := svc.FetchInfo(ctx, storyURL)
	require.NoError(t, err)
	story, err := svc.SaveStory(ctx, info)
	require.NoError(t, err)
	_, err = svc.SaveChapter(ctx, upsert.ChapterInput{
		StoryID:   story.ID,
		Title:     "Chương 1: Ly hương",
		Content:   "x",
		SourceURL: "https://truyenfull.vision/tien-nghich/chuong-1/",
		Number:    crawler.IntPtr(1),
	})
	require.NoError(t, err)

	res, err := svc.FetchChaptersFor(ctx, story.ID, storyURL)
	require.NoError(t, err)
	require.Equal(t, story.ID, *res.Debug.MatchedStoryID)
	require.Equal(t, StrategyStoryID, res.Debug.Strategy)
	require.Equal(t, 1, res.Debug.DBChapterCount)
	require.True(t, res.Stubs[0].Exists)
	require.False(t, res.Stubs[1].Exists)
}

func TestFetchChaptersForReturnsStoreError(t *testing.T) {
	st := &failingStore{Store: memory.NewDocumentStore(), err: errors.New("db down")}
	svc := newService(t, mapFetcher{pages: sitePages()}, st)

	res, err := svc.FetchChaptersFor(context.Background(), 3, storyURL)
	var se *crawler.StoreError
	require.ErrorAs(t, err, &se)
	require.Contains(t, err.Error(), "db down")
	require.Empty(t, res.Stubs)

	_, err = svc.FetchChaptersFor(context.Background(), 0, storyURL)
	require.ErrorIs(t, err, crawler.ErrInvalidInput)
}

func TestFetchChaptersFailsWholeWalk(t *testing.T) {
	pages := sitePages()
	delete(pages, "https://truyenfull.vision/tien-nghich/trang-2/#list-chapter")
	svc := newService(t, mapFetcher{pages: pages}, memory.NewDocumentStore())

	res, err := svc.FetchChapters(context.Background(), ChaptersRequest{URL: storyURL, StoryName: "Tiên Nghịch"})
	require.Error(t, err)
	require.Empty(t, res.Stubs)
}

func TestFetchChaptersValidation(t *testing.T) {
	svc := newService(t, mapFetcher{}, memory.NewDocumentStore())

	_, err := svc.FetchChapters(context.Background(), ChaptersRequest{URL: storyURL})
	require.ErrorIs(t, err, crawler.ErrInvalidInput)
	_, err = svc.FetchChapters(context.Background(), ChaptersRequest{StoryName: "x"})
	require.ErrorIs(t, err, crawler.ErrInvalidInput)
}

func TestFetchChapterContent(t *testing.T) {
	svc := newService(t, mapFetcher{pages: sitePages()}, memory.NewDocumentStore())

	content, err := svc.FetchChapterContent(context.Background(), "https://truyenfull.vision/tien-nghich/chuong-2/")
	require.NoError(t, err)
	require.Equal(t, "Chương 2: Nhập môn", content.Title)
	require.Equal(t, "Nội dung.", content.Content)
}

func TestSaveStoryThroughService(t *testing.T) {
	ctx := context.Background()
	st := memory.NewDocumentStore()
	svc := newService(t, mapFetcher{}, st)

	res, err := svc.SaveStory(ctx, crawler.StorySourceInfo{Name: "Kiếm Lai", Author: "Phong Hỏa Hí Chư Hầu"})
	require.NoError(t, err)
	require.Equal(t, "kiem-lai", res.Slug)

	n, err := st.Count(ctx, catalog.TableStories, store.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

type failingStore struct {
	store.Store
	err error
}

func (f *failingStore) Find(context.Context, string, store.Filter, store.FindOptions) ([]store.Row, error) {
	return nil, f.err
}
