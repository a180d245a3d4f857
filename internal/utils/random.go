package utils

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/mozillazg/go-pinyin"
	"github.com/sysu-ecnc-dev/report-engine/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
	"庆", "建", "丹", "彬", "凤", "旭", "宁", "乐", "成", "欣",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var roles = []domain.Role{
	domain.RoleViewer,
	domain.RoleEditor,
	domain.RoleAdmin,
}

func GenerateRandomRole() domain.Role {
	return roles[rand.Intn(len(roles))]
}

var digits = "0123456789"

func GenerateUsernameFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	username := ""

	for _, pinyin := range pinyinArray {
		length := rand.Intn(len(pinyin)) + 1
		username += pinyin[:length]
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		username += string(digits[rand.Intn(len(digits))])
	}

	return username
}

func GenerateRandomUser(tenantID int64, password string, emailDomainName string) (*domain.User, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateUsernameFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		TenantID:     tenantID,
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         GenerateRandomRole(),
	}

	return user, nil
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*")

func GenerateRandomPassword(length int) string {
	random_password := make([]rune, length)
	for i := range random_password {
		random_password[i] = letters[rand.Intn(len(letters))]
	}
	return string(random_password)
}

func GenerateRandomID(letterLength int, digitLength int) string {
	random_id := make([]rune, letterLength+digitLength)
	for i := range random_id {
		if i < letterLength {
			random_id[i] = letters[rand.Intn(len(letters))]
		} else {
			random_id[i] = rune(digits[rand.Intn(len(digits))])
		}
	}
	return string(random_id)
}

var reportTopics = []string{"销售日报", "库存周报", "活跃用户", "营收汇总", "故障统计", "访问量"}

// GenerateRandomReport 生成一份带有示例数据和图表配置的报表
func GenerateRandomReport(tenantID int64) *domain.Report {
	topic := reportTopics[rand.Intn(len(reportTopics))]

	rows := make([]map[string]any, 0, 7)
	for i := 0; i < 7; i++ {
		rows = append(rows, map[string]any{
			"label": fmt.Sprintf("第%d天", i+1),
			"value": rand.Intn(1000),
		})
	}
	cachedData, _ := json.Marshal(rows)

	chartConfig, _ := json.Marshal(map[string]any{
		"type":  []string{"bar", "line", "pie"}[rand.Intn(3)],
		"title": topic,
	})

	return &domain.Report{
		TenantID:    tenantID,
		Name:        topic + GenerateRandomID(2, 3),
		CachedData:  cachedData,
		ChartConfig: chartConfig,
	}
}

var frequencies = []domain.Frequency{
	domain.FrequencyDaily,
	domain.FrequencyWeekly,
	domain.FrequencyMonthly,
	domain.FrequencyQuarterly,
	domain.FrequencySemiAnnual,
	domain.FrequencyAnnual,
}

// GenerateRandomScheduleInput 生成一组字段自洽的计划参数
func GenerateRandomScheduleInput() (domain.Frequency, string, *int, *int) {
	frequency := frequencies[rand.Intn(len(frequencies))]
	timeOfDay := fmt.Sprintf("%02d:%02d", rand.Intn(24), rand.Intn(60))

	var dayOfWeek, dayOfMonth *int
	switch frequency {
	case domain.FrequencyDaily:
	case domain.FrequencyWeekly:
		day := rand.Intn(7)
		dayOfWeek = &day
	default:
		day := rand.Intn(28) + 1
		dayOfMonth = &day
	}

	return frequency, timeOfDay, dayOfWeek, dayOfMonth
}
