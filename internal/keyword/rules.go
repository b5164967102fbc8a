package keyword

import "github.com/schoolbot/schoolbot/internal/db"

// DefaultRules gate kindergarten and elementary questions to their own
// lexicons. Kindergarten is checked first, so an utterance naming both goes
// to kindergarten.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "kindergarten",
			Markers:  []string{"유치원"},
			Category: db.CategoryKindergarten,
			Keywords: []string{
				"운영시간", "교육비", "특성화", "담임", "연락처", "전화번호",
				"개학일", "방학일", "졸업식", "행사일", "교육과정", "방과후과정",
				"교사면담", "입학문의", "신청방법", "하원", "등원", "체험학습",
			},
			Score: 0.8,
		},
		{
			Name:     "elementary",
			Markers:  []string{"초등"},
			Excludes: []string{"유치원"},
			Category: db.CategoryElementary,
			Keywords: []string{
				"급식", "방과후", "늘봄교실", "상담", "전학", "서류", "발급",
				"개학일", "방학일", "시험일", "행사일", "학교시설", "등하교",
				"보건실", "정차대", "교실배치도",
			},
			Score: 0.8,
		},
	}
}

// DefaultImportantKeywords drive the general-case overlap ratio.
func DefaultImportantKeywords() []string {
	return []string{
		"개학", "급식", "방과후", "전학", "상담", "결석", "교실", "등하교",
		"학교시설", "유치원", "전화번호", "연락처", "일정", "시간", "방법",
		"절차", "신청", "등록", "예약", "문의", "알려줘", "알려주세요",
		"어디", "언제", "어떻게", "무엇", "왜", "누가", "어떤", "몇",
		"밥", "점심", "메뉴", "식사", "중식", "밥상", "먹어", "나와",
		"얘기", "만나", "아프면", "병원", "등원", "하원",
		"뭐야", "뭐예요", "어디야", "어디예요", "언제야", "언제예요",
		"어떻게야", "어떻게예요", "얼마야", "얼마예요", "얼마나",
	}
}
