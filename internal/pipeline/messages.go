package pipeline

import (
	"fmt"
	"strings"

	"github.com/meishihq/meishi/internal/card"
)

const welcomeText = `🤖 歡迎使用名片管理 Bot！

📸 功能介紹：
• 智能名片識別
• 自動存入 Notion 資料庫
• 台灣電話號碼正規化

🚀 開始使用：
• 直接傳送名片照片給我
• 或輸入 /help 查看詳細說明`

const helpText = `🤖 名片管理 Bot 使用說明

📸 名片處理
• 直接傳送名片照片給我
• 我會自動識別名片資訊並存入 Notion

⚙️ 指令
• /start - 開始使用
• /help - 顯示本說明

❓ 有問題請聯繫系統管理員`

const usageHintText = `💡 請直接傳送名片照片，或輸入 /help 查看使用說明`

const processingStartedText = `📸 收到名片照片，正在處理中...`

// replyForCommand picks the lightweight reply for a command update.
func replyForCommand(text string) string {
	command := strings.ToLower(strings.TrimSpace(text))
	if idx := strings.IndexAny(command, " @"); idx > 0 {
		command = command[:idx]
	}
	switch command {
	case "/start":
		return welcomeText
	case "/help":
		return helpText
	default:
		return usageHintText
	}
}

// messageForOutcome renders the notification for a terminal pipeline
// outcome. It is a pure function of the outcome (plus the stored record
// for the success summary).
func messageForOutcome(outcome Outcome, record card.Record) string {
	switch outcome.Kind {
	case KindSuccess:
		return successMessage(record, outcome.Reference.URL)
	case KindFetchFailed:
		return "❗ 無法下載圖片，請重新傳送名片照片。"
	case KindExtractionFailed:
		return fmt.Sprintf("❌ 名片識別失敗: %s", outcome.Reason)
	case KindStoreFailed:
		return storeFailureMessage(outcome)
	case KindTimedOut:
		return "⏳ 處理逾時，請稍後重新傳送名片照片。"
	default:
		return usageHintText
	}
}

// storeFailureMessage names the failure category so an operator can map
// it to a credential or database share without seeing any secret.
func storeFailureMessage(outcome Outcome) string {
	var hint string
	switch outcome.StoreCategory {
	case StoreCategoryUnauthorized:
		hint = "授權失敗，請檢查 Notion API Key"
	case StoreCategoryForbidden:
		hint = "權限不足，請確認資料庫已分享給 Integration"
	case StoreCategoryNotFound:
		hint = "找不到目標資料庫，請檢查資料庫 ID"
	default:
		hint = "服務暫時無法使用，請稍後再試"
	}
	return fmt.Sprintf("❌ Notion 存入失敗（%s）", hint)
}

func successMessage(record card.Record, url string) string {
	var b strings.Builder
	b.WriteString("✅ 名片資訊已成功存入 Notion！\n\n")
	writeField(&b, "👤 姓名", record.Name)
	writeField(&b, "🏢 公司", record.Company)
	writeField(&b, "🏬 部門", record.Department)
	writeField(&b, "💼 職稱", record.Title)
	writeField(&b, "📧 Email", record.Email)
	writeField(&b, "📞 電話", record.Phone)
	if url != "" {
		b.WriteString("\n🔗 Notion 頁面：")
		b.WriteString(url)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = "N/A"
	}
	fmt.Fprintf(b, "%s：%s\n", label, value)
}
