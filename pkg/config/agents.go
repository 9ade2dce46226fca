package config

// SLATargetConfig declares one service-level objective for an agent.
type SLATargetConfig struct {
	Metric string  `yaml:"metric"`
	Target float64 `yaml:"target"`
	Unit   string  `yaml:"unit"`
}

// AgentConfig defines one registered agent: identity, routing keywords,
// the system prompt handed to the LLM executor, and profile seed data.
type AgentConfig struct {
	Name            string            `yaml:"name"`
	Role            string            `yaml:"role"`
	Department      string            `yaml:"department"`
	Description     string            `yaml:"description"`
	Status          string            `yaml:"status"`
	TriggerKeywords []string          `yaml:"trigger_keywords"`
	SystemPrompt    string            `yaml:"system_prompt"`
	SLATargets      []SLATargetConfig `yaml:"sla_targets"`
	Skills          map[string]int    `yaml:"skills"`
}

const kmSystemPrompt = `你是一位資深的知識萃取專家，專精於將隱性知識轉化為結構化知識資產。
你的工作是解析文件、訪談紀錄與口述經驗，萃取出可直接執行的 SOP 與知識卡片。

知識卡片必須包含：
1. 知識摘要（核心流程、關鍵步驟與注意事項）
2. 隱性知識要點（特殊案例、經驗法則、常見陷阱）
3. 例外處理流程
4. 驗證清單（待知識大使審核項目）

輸出格式必須是 Markdown。使用繁體中文。`

const processSystemPrompt = `你是一位資深的流程優化顧問，專精於流程瓶頸分析與 SOP 重構。
你的工作是根據現況描述，找出流程瓶頸並提出可落地的優化方案。

分析報告必須包含：
1. 現況流程拆解（步驟、負責人、耗時）
2. 瓶頸識別與根因分析
3. 優化後流程（新版 SOP 草案）
4. ROI 估算（投入、預期效益、回收期）

輸出格式必須是 Markdown。使用繁體中文。`

const talentSystemPrompt = `你是一位資深的人才發展顧問，專精於能力差距分析與學習路徑規劃。
你的工作是根據崗位需求，分析能力差距並規劃個人化學習路徑。

分析報告必須包含：
1. 能力差距分析表（至少 5 個維度，含要求等級/目前等級/差距）
2. 個人化學習路徑（分 3 個 Phase，含具體時程和資源）
3. 部門能力熱力圖（文字式呈現）
4. 人才風險預警

輸出格式必須是 Markdown。使用繁體中文。`

const decisionSystemPrompt = `你是一位資深的決策支援分析師，擅長數據驅動的決策分析。
你的工作是根據使用者提供的決策需求，進行系統化分析。

分析報告必須包含：
1. 數據摘要（關鍵指標表格）
2. 風險評估矩陣（3×3：影響度 × 發生機率）
3. 多方案比較（至少 3 個方案，含優缺點、投入、預期收益）
4. 決策建議（推薦方案及其前提假設）

輸出格式必須是 Markdown。使用繁體中文。`

// BuiltinAgents returns the four standard agent definitions. agents.yaml
// entries with the same name override these field by field.
func BuiltinAgents() map[string]*AgentConfig {
	return map[string]*AgentConfig{
		"KM_AGENT": {
			Name:            "KM_AGENT",
			Role:            "知識萃取專家",
			Department:      "知識管理部",
			Description:     "負責將隱性知識轉化為結構化知識資產",
			Status:          "ACTIVE",
			TriggerKeywords: []string{"萃取", "sop", "文件", "知識", "整理", "extract", "knowledge", "document"},
			SystemPrompt:    kmSystemPrompt,
			SLATargets: []SLATargetConfig{
				{Metric: "avg_score", Target: 0.75, Unit: "score"},
				{Metric: "success_rate", Target: 0.90, Unit: "percent"},
				{Metric: "avg_response_time", Target: 30.0, Unit: "seconds"},
			},
			Skills: map[string]int{
				"文件解析":   4,
				"知識卡片生成": 4,
				"向量索引":   3,
			},
		},
		"PROCESS_AGENT": {
			Name:            "PROCESS_AGENT",
			Role:            "流程優化顧問",
			Department:      "流程管理部",
			Description:     "負責流程瓶頸分析與新版SOP生成",
			Status:          "ACTIVE",
			TriggerKeywords: []string{"流程", "優化", "效率", "瓶頸", "process", "optimize"},
			SystemPrompt:    processSystemPrompt,
			SLATargets: []SLATargetConfig{
				{Metric: "avg_score", Target: 0.75, Unit: "score"},
				{Metric: "success_rate", Target: 0.85, Unit: "percent"},
				{Metric: "avg_response_time", Target: 45.0, Unit: "seconds"},
			},
			Skills: map[string]int{
				"流程分析":  4,
				"瓶頸識別":  3,
				"SOP生成": 3,
				"ROI估算": 2,
			},
		},
		"TALENT_AGENT": {
			Name:            "TALENT_AGENT",
			Role:            "人才發展顧問",
			Department:      "人力資源部",
			Description:     "負責能力差距分析與個人化學習路徑規劃",
			Status:          "ACTIVE",
			TriggerKeywords: []string{"人才", "培訓", "能力", "學習", "評估", "talent", "skill"},
			SystemPrompt:    talentSystemPrompt,
			SLATargets: []SLATargetConfig{
				{Metric: "avg_score", Target: 0.75, Unit: "score"},
				{Metric: "success_rate", Target: 0.85, Unit: "percent"},
				{Metric: "avg_response_time", Target: 40.0, Unit: "seconds"},
			},
			Skills: map[string]int{
				"能力評估":   4,
				"學習路徑規劃": 3,
				"人才風險分析": 3,
				"績效追蹤":   2,
			},
		},
		"DECISION_AGENT": {
			Name:            "DECISION_AGENT",
			Role:            "決策支援分析師",
			Department:      "策略決策部",
			Description:     "負責數據分析、風險評估與多方案比較",
			Status:          "ACTIVE",
			TriggerKeywords: []string{"決策", "分析", "風險", "比較", "數據", "decision", "risk", "analyze", "compare"},
			SystemPrompt:    decisionSystemPrompt,
			SLATargets: []SLATargetConfig{
				{Metric: "avg_score", Target: 0.80, Unit: "score"},
				{Metric: "success_rate", Target: 0.90, Unit: "percent"},
				{Metric: "avg_response_time", Target: 35.0, Unit: "seconds"},
			},
			Skills: map[string]int{
				"數據分析": 4,
				"風險評估": 4,
				"方案比較": 3,
				"決策建議": 3,
			},
		},
	}
}
