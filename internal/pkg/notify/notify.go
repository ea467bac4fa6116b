package notify

// Mailer 定义验证码投递接口。
type Mailer interface {
	// SendVerificationCode 向指定邮箱发送验证码。
	//
	// 参数:
	//   toEmail: 接收邮箱
	//   name: 收件人显示名称
	//   code: 6 位数字验证码
	SendVerificationCode(toEmail string, name string, code string) error
}
