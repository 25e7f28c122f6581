package audit

// MockAnalysis is the fixed analysis served when the LLM cannot be reached.
// Only the embedded URL varies between calls.
func MockAnalysis(t Target) AuditAnalysis {
	return AuditAnalysis{
		SchemaStatus: StatusPartial,
		DetailedInfo: []string{
			"Website có một số schema cơ bản",
			"Thiếu schema GEO quan trọng cho SEO địa phương",
			"Cần bổ sung thông tin LocalBusiness",
		},
		Improvements: []string{
			"Thêm schema LocalBusiness với thông tin đầy đủ",
			"Bổ sung PostalAddress với địa chỉ cụ thể",
			"Thêm GeoCoordinates cho vị trí chính xác",
			"Cập nhật openingHours cho giờ hoạt động",
			"Thêm telephone và email liên hệ",
		},
		GeoSchemas: []SchemaFinding{{
			Type:   "Organization",
			Status: FindingWarning,
			Properties: map[string]any{
				"name":        "Website Organization",
				"url":         t.TargetURL(),
				"description": "Thông tin tổ chức cơ bản",
			},
		}},
		Issues: []string{
			"Thiếu schema LocalBusiness cho SEO địa phương",
			"Chưa có thông tin địa chỉ PostalAddress",
			"Thiếu tọa độ địa lý GeoCoordinates",
			"Chưa khai báo giờ hoạt động openingHours",
		},
		Score: 60,
	}
}
