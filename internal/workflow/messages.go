package workflow

import (
	"fmt"

	"github.com/mfukuda/weathergraph/internal/client"
)

// User-facing error messages. The service reports to Japanese-speaking users,
// so state errors are written in Japanese; internal Go errors stay English.
const (
	msgMissingAPIKey = "OpenWeatherMap APIキーが設定されていません。環境変数 OPENWEATHER_API_KEY を設定するか、設定で api_key を指定してください。https://openweathermap.org/api から無料のAPIキーを発行できます。"
	msgInvalidAPIKey = "OpenWeatherMap APIキーが無効です。OpenWeatherMapで有効なAPIキーを取得してください。"
	msgRateLimited   = "OpenWeatherMap API制限に達しました。1分後に再試行してください。"
	msgTimeout       = "OpenWeatherMap APIへのリクエストがタイムアウトしました。ネットワーク接続を確認してください。"

	msgEmptyCity   = "都市名が入力されていません。都市名を含む文章を入力するか、city_hint を指定してください。"
	msgInvalidCity = "都市名に使用できない文字が含まれています。都市名を確認してください。"

	msgNoUserInput      = "ユーザー入力がありません。都市名を含む文章を入力するか、city_hint を指定してください。"
	msgExtractionFailed = "入力から都市名を抽出できませんでした。都市名を含む文章を入力するか、city_hint を指定してください。"

	msgNoWeatherData = "予期しないエラー: 天気情報がありません。"
)

func cityNotFoundMessage(city string) string {
	return fmt.Sprintf("都市 '%s' が見つかりません。都市名のスペルを確認してください。例: 'Tokyo', 'Seoul', 'Paris', 'New York'", city)
}

func upstreamErrorMessage(err error) string {
	return fmt.Sprintf("OpenWeatherMapサーバーエラーが発生しました (%v)。しばらく待ってから再試行してください。", err)
}

func networkErrorMessage(err error) string {
	return fmt.Sprintf("OpenWeatherMap APIリクエストエラー: %v。ネットワーク接続を確認してください。", err)
}

func parseErrorMessage(err error) string {
	return fmt.Sprintf("天気データの解析エラー: %v", err)
}

func unexpectedErrorMessage(err error) string {
	return fmt.Sprintf("予期しないエラー: %v。しばらく待ってから再試行してください。", err)
}

// fetchErrorMessage renders the user-facing message for a provider call
// failure, keyed off the error's category.
func fetchErrorMessage(city string, err error) string {
	switch client.CategorizeError(err) {
	case client.ErrorCategoryInvalidAPIKey:
		return msgInvalidAPIKey
	case client.ErrorCategoryCityNotFound:
		return cityNotFoundMessage(city)
	case client.ErrorCategoryRateLimited:
		return msgRateLimited
	case client.ErrorCategoryUpstream5xx:
		return upstreamErrorMessage(err)
	case client.ErrorCategoryTimeout:
		return msgTimeout
	case client.ErrorCategoryNetwork:
		return networkErrorMessage(err)
	case client.ErrorCategoryParsing:
		return parseErrorMessage(err)
	default:
		return unexpectedErrorMessage(err)
	}
}
