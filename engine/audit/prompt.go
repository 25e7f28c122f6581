package audit

import (
	"fmt"

	"github.com/WessleyAI/geoaudit/pkg/llm"
)

// postContentBudget is how many characters of post content go into a prompt.
const postContentBudget = 1000

const (
	websiteSystemInstruction = "Bạn là chuyên gia SEO kỹ thuật và schema markup. Hãy phân tích website và trả về kết quả dưới dạng JSON hợp lệ."
	postSystemInstruction    = "Bạn là chuyên gia SEO kỹ thuật và schema markup. Phân tích bài viết và trả về JSON hợp lệ."
)

const websitePromptTmpl = `Tôi muốn bạn đóng vai trò là chuyên gia SEO kỹ thuật và schema markup.

Hãy phân tích website sau để đánh giá mức độ tuân thủ GEO schema – đặc biệt là các structured data liên quan đến thông tin địa phương như LocalBusiness.

URL website: %s

Hãy kiểm tra và phản hồi các nội dung sau:

1. **Có tồn tại schema GEO liên quan không?**
   - Các loại schema cần kiểm tra: LocalBusiness, Place, PostalAddress, GeoCoordinates
   - Dạng dữ liệu sử dụng: JSON-LD, Microdata, RDFa

2. **Thông tin schema có đầy đủ và chính xác không?**
   - @type: Có là LocalBusiness hoặc loại phù hợp không?
   - name, address, telephone, openingHours: có đầy đủ không?
   - addressLocality, addressCountry, postalCode: có đúng định dạng không?
   - geo (latitude, longitude): có được khai báo không?

3. **Dữ liệu có tuân thủ theo chuẩn schema.org không?**
   - Có lỗi trong cú pháp hoặc kiểu dữ liệu không?
   - Có dữ liệu thừa hoặc thiếu cần tối ưu không?

4. **Khuyến nghị cải thiện nếu thiếu hoặc sai dữ liệu GEO schema**

Trả kết quả theo định dạng JSON với cấu trúc sau:
{
  "schemaStatus": "Có/Không/Một phần",
  "detailedInfo": ["mục 1", "mục 2", ...],
  "improvements": ["đề xuất 1", "đề xuất 2", ...],
  "geoSchemas": [
    {
      "type": "LocalBusiness",
      "status": "valid/invalid/warning",
      "properties": {
        "name": "...",
        "address": "...",
        "telephone": "..."
      }
    }
  ],
  "issues": ["vấn đề 1", "vấn đề 2", ...],
  "score": 85
}

Hãy phân tích thực tế và trả về JSON hợp lệ.`

const postPromptTmpl = `Tôi muốn bạn đóng vai trò là chuyên gia SEO kỹ thuật và schema markup.

Hãy phân tích bài viết WordPress sau để đánh giá mức độ tuân thủ schema markup cho Article và các schema liên quan:

URL bài viết: %s
Tiêu đề: %s
Nội dung: %s...

Hãy kiểm tra và phản hồi:

1. **Schema Article có tồn tại không?**
   - Kiểm tra: headline, author, datePublished, dateModified, description
   - mainEntityOfPage, publisher, image

2. **Schema BreadcrumbList có được khai báo không?**

3. **Schema Person (author) có đầy đủ không?**

4. **Schema Organization (publisher) có chính xác không?**

5. **Đề xuất cải thiện cho SEO và schema markup**

Trả kết quả theo định dạng JSON:
{
  "schemaStatus": "Có/Không/Một phần",
  "detailedInfo": ["thông tin chi tiết"],
  "improvements": ["đề xuất cải thiện"],
  "geoSchemas": [
    {
      "type": "Article",
      "status": "valid/invalid/warning",
      "properties": {...}
    }
  ],
  "issues": ["vấn đề cần khắc phục"],
  "score": 75
}`

// BuildWebsitePrompt builds the whole-site GEO audit instruction.
func BuildWebsitePrompt(url string) string {
	return fmt.Sprintf(websitePromptTmpl, url)
}

// BuildPostPrompt builds the single-post audit instruction. Only the first
// postContentBudget characters of contentHTML are embedded.
func BuildPostPrompt(url, title, contentHTML string) string {
	return fmt.Sprintf(postPromptTmpl, url, title, truncateRunes(contentHTML, postContentBudget))
}

// BuildPrompt picks the prompt variant for t.
func BuildPrompt(t Target) string {
	switch v := t.(type) {
	case PostTarget:
		return BuildPostPrompt(v.URL, v.Title, v.ContentHTML)
	case *PostTarget:
		return BuildPostPrompt(v.URL, v.Title, v.ContentHTML)
	default:
		return BuildWebsitePrompt(t.TargetURL())
	}
}

// SystemInstruction returns the system message for t's variant.
func SystemInstruction(t Target) string {
	switch t.(type) {
	case PostTarget, *PostTarget:
		return postSystemInstruction
	default:
		return websiteSystemInstruction
	}
}

// BuildRequest wraps the prompt for t in a chat-completion request.
func BuildRequest(t Target, opts Options) llm.ChatRequest {
	return llm.ChatRequest{
		Model: opts.Model,
		Messages: []llm.Message{
			{Role: "system", Content: SystemInstruction(t)},
			{Role: "user", Content: BuildPrompt(t)},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
