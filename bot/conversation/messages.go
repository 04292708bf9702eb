package conversation

import (
	"fmt"
	"time"
)

// Replies shown to users. Kept together so wording changes stay in one place.
const (
	msgAskTime          = "ご希望の時間帯を選択してください（本日分のみ表示）"
	msgAskTimeAgain     = "再度、時間帯をお選びください。"
	msgNoSlotsToday     = "申し訳ありません。本日の予約可能な時間帯はありません。"
	msgUnexpected       = "予期せぬ操作です。最初から「予約」と入力してください。"
	msgTimeFormat       = "時間形式の処理中にエラーが発生しました。もう一度お試しください。"
	msgNoTimeSelected   = "日時が選択されませんでした。"
	msgSlotFull         = "申し訳ありません。その時間帯は満席です。別の時間をお選びください。"
	msgSlotNotBookable  = "選択された時間は予約できません。別の時間をお選びください。"
	msgDraftIncomplete  = "予約情報が不足しています。最初からやり直してください。"
	msgFilledMeanwhile  = "申し訳ありません。最終確認中に満席となってしまいました。お手数ですが、別の日時で再度お試しください。"
	msgBooked           = "ご予約ありがとうございます！予約を確定しました。"
	msgInsertFailed     = "申し訳ありません、予約の処理中にエラーが発生しました。お手数ですが、少し時間をおいて再度お試しください。"
	msgCancelled        = "予約をキャンセルしました。最初からやり直す場合は「予約」と入力してください。"
	msgGenericError     = "エラーが発生しました。もう一度お試しください。"
	msgPostbackFallback = "この操作は現在ご利用いただけません。\n「予約」と入力すると予約を開始できます。"
	msgNothingToCancel  = "進行中の予約はありません。\n「予約」と入力すると予約を開始できます。"

	msgPeopleNotNumber = "数値で入力してください。"

	labelYes = "はい"
	labelNo  = "いいえ"
)

func msgAskPeople(t time.Time, minPeople, maxPeople int) string {
	return fmt.Sprintf("%sですね。次に、人数（%d〜%d）を入力してください。", t.Format("15:04"), minPeople, maxPeople)
}

func msgPeopleInvalid(reason string) string {
	return "人数を正しく入力してください (例: 2)。\nエラー: " + reason
}

func msgPeopleOutOfRange(minPeople, maxPeople int) string {
	return fmt.Sprintf("人数は%d名から%d名の間で入力してください。", minPeople, maxPeople)
}

func msgConfirm(t time.Time, people int) string {
	return fmt.Sprintf("以下の内容で予約しますか？\n日時: %s\n人数: %d名様", t.Format("2006年01月02日 15時04分"), people)
}

func msgReference(ref string) string {
	return "予約番号: " + ref
}

func msgEcho(text string) string {
	return fmt.Sprintf("「%s」ですね。\n「予約」と入力すると予約を開始できます。", text)
}
