package assist

import "strings"

// User-facing answers shown instead of raw provider errors. Technical detail
// stays in the logs.
const (
	userErrorOverloaded = "⚠️ هناك ضغط عالٍ على الخوادم حالياً نظراً لكثرة الطلبات. يرجى الانتظار دقيقة واحدة ثم إعادة المحاولة، سيتم إعطاء طلبك الأولوية."
	userErrorInput      = "تعذر معالجة هذا المحتوى لأنه قد يكون غير واضح أو مخالف للسياسات. حاول صياغته بشكل مختلف."
	userErrorKeys       = "نواجه خللاً مؤقتاً في مفاتيح الاتصال، جاري التبديل للمفاتيح الاحتياطية. حاول مجدداً."
	userErrorInternal   = "حدث خطأ داخلي في الخادم، يرجى المحاولة بعد لحظات."
	userErrorNetwork    = "يرجى التحقق من اتصالك بالإنترنت."
	userErrorGeneric    = "حدث خطأ بسيط أثناء المعالجة، يرجى إعادة المحاولة."
	userErrorUnknown    = "حدث خطأ غير متوقع، يرجى المحاولة."
)

// FormatUserError maps one provider error to a user-facing message.
//
// Classification is substring-based on the provider error text because the
// SDKs surface transport failures and HTTP statuses as opaque strings.
func FormatUserError(err error) string {
	if err == nil {
		return userErrorUnknown
	}

	message := strings.ToLower(err.Error())

	switch {
	case containsAny(message, "429", "resource_exhausted", "quota", "overloaded", "503"):
		return userErrorOverloaded
	case containsAny(message, "400", "invalid_argument"):
		return userErrorInput
	case containsAny(message, "403", "permission", "api key", "api_key"):
		return userErrorKeys
	case containsAny(message, "500", "internal"):
		return userErrorInternal
	case containsAny(message, "network", "connection refused", "no such host", "timeout", "offline"):
		return userErrorNetwork
	default:
		return userErrorGeneric
	}
}

func containsAny(message string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(message, needle) {
			return true
		}
	}

	return false
}
