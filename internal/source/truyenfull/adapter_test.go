package truyenfull

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const storyPage = `<html><body>
<div class="col-info-desc">
  <h3 class="title" itemprop="name">Tiên Nghịch</h3>
  <div class="book"><img src="/images/tien-nghich.jpg" alt="Tiên Nghịch"></div>
  <div class="info">
    <div><h3>Tác giả:</h3><a itemprop="author" href="/tac-gia/nhi-can/">Nhĩ Căn</a></div>
    <div><h3>Thể loại:</h3>
      <a itemprop="genre" href="/the-loai/tien-hiep/">Tiên Hiệp</a>,
      <a itemprop="genre" href="/the-loai/huyen-huyen/">Huyền Huyễn</a>
    </div>
    <div><h3>Trạng thái:</h3><span class="text-success">Full</span></div>
  </div>
  <div class="desc-text" itemprop="description">Vương Lâm <b>tu tiên</b>.</div>
</div>
<h3 class="title">Truyện cùng tác giả</h3>
</body></html>`

const listPage = `<html><body>
<div id="list-chapter">
  <ul class="list-chapter">
    <li><a href="https://truyenfull.vision/tien-nghich/chuong-1/" title="Tiên Nghịch - Chương 1: Ly hương">Chương 1: Ly hương</a></li>
    <li><a href="/tien-nghich/chuong-2/">Chương 2: Nhập môn</a></li>
    <li><a href="/tien-nghich/ngoai-truyen/">Ngoại truyện</a></li>
    <li><a href="">Broken</a></li>
  </ul>
</div>
<ul class="pagination">
  <li class="active"><a href="#">1</a></li>
  <li><a href="/tien-nghich/trang-2/#list-chapter">2</a></li>
</ul>
</body></html>`

const lastListPage = `<html><body>
<ul class="list-chapter"><li><a href="/tien-nghich/chuong-51/">Chương 51</a></li></ul>
<ul class="pagination">
  <li><a href="/tien-nghich/trang-1/#list-chapter">1</a></li>
  <li class="active"><span>2</span></li>
</ul>
</body></html>`

const labelledNextPage = `<html><body>
<ul class="list-chapter"><li><a href="/x/chuong-3/">Chương 3</a></li></ul>
<ul class="pagination"><li><a href="/x/trang-3/#list-chapter">Trang tiếp <span class="arrow">›</span></a></li></ul>
</body></html>`

const chapterPage = `<html><body>
<a class="chapter-title" href="/tien-nghich/chuong-2/">Chương 2: Nhập môn</a>
<div class="chapter-c">Đoạn một.<div class="ads-holder">QC</div><br/>Đoạn hai.<div class="ads-chapter">QC2</div></div>
</body></html>`

func TestParseStoryInfo(t *testing.T) {
	a := New("https://truyenfull.vision/")
	info := a.ParseStoryInfo(storyPage)

	require.Equal(t, "Tiên Nghịch", info.Name)
	require.Equal(t, "Nhĩ Căn", info.Author)
	require.Equal(t, "https://truyenfull.vision/images/tien-nghich.jpg", info.Image)
	require.Equal(t, "Full", info.Status)
	require.Equal(t, []string{"Tiên Hiệp", "Huyền Huyễn"}, info.Categories)
	require.Equal(t, "Vương Lâm <b>tu tiên</b>.", info.Description)
}

func TestParseStoryInfoFallsBackToPrimaryStatus(t *testing.T) {
	a := New("https://truyenfull.vision")
	info := a.ParseStoryInfo(`<div class="info"><span class="text-primary">Đang ra</span></div>`)
	require.Equal(t, "Đang ra", info.Status)
	require.Empty(t, info.Name)
	require.Empty(t, info.Categories)
}

func TestParseStoryInfoToleratesEmptyInput(t *testing.T) {
	a := New("https://truyenfull.vision")
	require.Zero(t, a.ParseStoryInfo(""))
	require.Zero(t, a.ParseChapterListPage("   "))
	require.Zero(t, a.ParseChapterContent(""))
}

func TestParseChapterListPage(t *testing.T) {
	a := New("https://truyenfull.vision")
	page := a.ParseChapterListPage(listPage)

	require.True(t, page.HasNext)
	require.Len(t, page.Stubs, 3)

	require.Equal(t, "Chương 1: Ly hương", page.Stubs[0].Title)
	require.Equal(t, "https://truyenfull.vision/tien-nghich/chuong-1/", page.Stubs[0].URL)
	require.NotNil(t, page.Stubs[0].Number)
	require.Equal(t, 1, *page.Stubs[0].Number)

	require.Equal(t, "https://truyenfull.vision/tien-nghich/chuong-2/", page.Stubs[1].URL)
	require.Equal(t, 2, *page.Stubs[1].Number)

	require.Equal(t, "Ngoại truyện", page.Stubs[2].Title)
	require.Nil(t, page.Stubs[2].Number)
}

func TestParseChapterListPageDetectsLastPage(t *testing.T) {
	a := New("https://truyenfull.vision")
	page := a.ParseChapterListPage(lastListPage)
	require.False(t, page.HasNext)
	require.Len(t, page.Stubs, 1)
}

func TestParseChapterListPageLabelledNext(t *testing.T) {
	a := New("https://truyenfull.vision")
	require.True(t, a.ParseChapterListPage(labelledNextPage).HasNext)
}

func TestParseChapterContentStripsAds(t *testing.T) {
	a := New("https://truyenfull.vision")
	content := a.ParseChapterContent(chapterPage)
	require.Equal(t, "Chương 2: Nhập môn", content.Title)
	require.Equal(t, "Đoạn một.<br/>Đoạn hai.", content.Content)
	require.NotContains(t, content.Content, "QC")
}

func TestListPageURL(t *testing.T) {
	a := New("https://truyenfull.vision")
	require.Equal(t, "https://truyenfull.vision/tien-nghich/", a.ListPageURL("https://truyenfull.vision/tien-nghich", 1))
	require.Equal(t, "https://truyenfull.vision/tien-nghich/trang-3/#list-chapter", a.ListPageURL("https://truyenfull.vision/tien-nghich/", 3))
	require.Equal(t, Name, a.Name())
}
