package action

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blues/fundchain/internal/apperr"
	"github.com/blues/fundchain/internal/units"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateCampaignInput 创建项目表单, 金额为ETH小数字符串
type CreateCampaignInput struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=5000"`
	Image       string `json:"image" validate:"omitempty,max=512"`
	Category    string `json:"category" validate:"required"`
	Goal        string `json:"goal" validate:"required,numeric_amount"`
	Deadline    int64  `json:"deadline" validate:"required,gt=0"`
	MinDonation string `json:"min_donation" validate:"omitempty,numeric_amount"`
}

// DonateInput 捐赠
type DonateInput struct {
	Amount string `json:"amount" validate:"required,numeric_amount"`
}

// VoteInput 里程碑投票
type VoteInput struct {
	Support *bool `json:"support" validate:"required"`
}

// AddMilestoneInput 新增里程碑
type AddMilestoneInput struct {
	Description string `json:"description" validate:"required,max=1000"`
	Percentage  uint64 `json:"percentage" validate:"required,gte=1,lte=100"`
	TargetDate  int64  `json:"target_date" validate:"required,gt=0"`
}

// AddRewardInput 新增回报档位, MaxQuantity 为0表示不限量
type AddRewardInput struct {
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"required,max=1000"`
	MinAmount   string `json:"min_amount" validate:"required,numeric_amount"`
	MaxQuantity uint64 `json:"max_quantity"`
}

// AddReviewInput 评价
type AddReviewInput struct {
	Rating  int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"required,max=1000"`
}

func init() {
	_ = validate.RegisterValidation("numeric_amount", func(fl validator.FieldLevel) bool {
		_, err := units.ParseAmount(fl.Field().String())
		return err == nil
	})
}

// checkInput 结构体校验, 失败时返回 Validation 错误
func checkInput(op string, in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperr.Validation(op, "invalid input: %v", err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldMessage(fe))
	}
	return apperr.Validation(op, "%s", strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "numeric_amount":
		return fmt.Sprintf("%s must be a decimal amount", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
